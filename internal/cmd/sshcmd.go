package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rigstead/berth/internal/errors"
)

var sshCommandCmd = &cobra.Command{
	Use:   "ssh-command <instance-id>",
	Short: "Print a ready-to-paste ssh invocation for an instance",
	Long: `Print the ssh command line for connecting to the instance. When a
tunnel is active for the instance, the command includes the matching
-L port forward so a manual session reproduces it.

Examples:
  # Plain connection string
  berth ssh-command 12345 --host ssh4.vast.ai --ssh-port 12034

  # Feed it straight to the shell
  $(berth ssh-command 12345 --host ssh4.vast.ai --ssh-port 12034)`,
	Args: cobra.ExactArgs(1),
	RunE: runSSHCommand,
}

var sshCommandFlags instanceFlags

func init() {
	rootCmd.AddCommand(sshCommandCmd)
	sshCommandFlags.register(sshCommandCmd)
}

func runSSHCommand(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	h := sshCommandFlags.handle(rt.cfg, args[0])
	if err := h.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	parts := []string{"ssh"}
	if h.KeyPath != "" {
		parts = append(parts, "-i", h.KeyPath)
	}
	parts = append(parts, "-p", strconv.Itoa(h.SSHPort))
	parts = append(parts, fmt.Sprintf("%s@%s", h.EffectiveUser(), h.SSHHost))

	rec, err := rt.tunnelManager().Get(ctx, h.ID)
	switch {
	case err == nil:
		parts = append(parts, "-L", rec.Forward())
	case !errors.Is(err, errors.ErrTunnelNotFound):
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
	return nil
}
