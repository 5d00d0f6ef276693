package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/tui"
	"github.com/rigstead/berth/internal/tunnel"
	"github.com/rigstead/berth/internal/util"
)

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Manage detached SSH port-forwards to instances",
	Long: `Create, inspect, and stop local SSH tunnels. A tunnel is a detached
ssh process that outlives the CLI; its record is persisted and verified
against the live process on every command.`,
}

var tunnelCreateCmd = &cobra.Command{
	Use:   "create <instance-id>",
	Short: "Start (or reuse) a tunnel to an instance",
	Long: `Start a port-forward to the instance, allocating the lowest free
local port. Creating a tunnel that already runs is a no-op and prints the
existing record.

Examples:
  berth tunnel create 12345 --host ssh4.vast.ai --ssh-port 12034
  berth tunnel create 12345 --host ssh4.vast.ai --ssh-port 12034 --remote-port 8080`,
	Args: cobra.ExactArgs(1),
	RunE: runTunnelCreate,
}

var tunnelShowCmd = &cobra.Command{
	Use:   "show <instance-id>",
	Short: "Show the live tunnel record for an instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runTunnelShow,
}

var tunnelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live tunnels, pruning records of dead ones",
	RunE:  runTunnelList,
}

var tunnelStopCmd = &cobra.Command{
	Use:   "stop [instance-id]",
	Short: "Stop a tunnel (or all of them with --all)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTunnelStop,
}

var (
	tunnelCreateFlags instanceFlags
	tunnelRemotePort  int
	tunnelListJSON    bool
	tunnelListWatch   bool
	tunnelStopAll     bool
)

func init() {
	rootCmd.AddCommand(tunnelCmd)
	tunnelCmd.AddCommand(tunnelCreateCmd, tunnelShowCmd, tunnelListCmd, tunnelStopCmd)

	tunnelCreateFlags.register(tunnelCreateCmd)
	tunnelCreateCmd.Flags().IntVar(&tunnelRemotePort, "remote-port", 0, "remote port to forward (default: configured default_remote_port)")

	tunnelListCmd.Flags().BoolVar(&tunnelListJSON, "json", false, "print records as JSON")
	tunnelListCmd.Flags().BoolVar(&tunnelListWatch, "watch", false, "render a self-refreshing table")

	tunnelStopCmd.Flags().BoolVar(&tunnelStopAll, "all", false, "stop every tunnel")
}

func runTunnelCreate(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	h := tunnelCreateFlags.handle(rt.cfg, args[0])
	if err := h.Validate(); err != nil {
		return err
	}

	// The reused flag travels on the bus, not in the record.
	var reused bool
	sub := rt.bus.Subscribe("tunnel.created", func(e event.Event) {
		if ce, ok := e.(event.TunnelCreatedEvent); ok {
			reused = ce.Reused
		}
	})
	defer rt.bus.Unsubscribe(sub)

	ctx, cancel := signalContext()
	defer cancel()

	rec, err := rt.tunnelManager().Create(ctx, h, tunnelRemotePort)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if reused {
		fmt.Fprintf(out, "tunnel already running for instance %s\n", rec.InstanceID)
	}
	printTunnelRecord(out, rec)
	return nil
}

func runTunnelShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	rec, err := rt.tunnelManager().Get(ctx, args[0])
	if err != nil {
		return err
	}

	printTunnelRecord(cmd.OutOrStdout(), rec)
	return nil
}

func runTunnelList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	mgr := rt.tunnelManager()

	if tunnelListWatch {
		return tui.NewTunnels(mgr, rt.stateDir).Run(ctx)
	}

	records, err := mgr.List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if tunnelListJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No active tunnels.")
		return nil
	}
	printTunnelTable(out, records)
	return nil
}

func runTunnelStop(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	mgr := rt.tunnelManager()
	out := cmd.OutOrStdout()

	if tunnelStopAll {
		if len(args) > 0 {
			return errors.NewValidationError("--all does not take an instance id")
		}
		n, err := mgr.StopAll(ctx)
		fmt.Fprintf(out, "stopped %d tunnel(s)\n", n)
		return err
	}

	if len(args) != 1 {
		return errors.NewValidationError("instance id required (or --all)")
	}
	if err := mgr.Stop(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "stopped tunnel for instance %s\n", args[0])
	return nil
}

// printTunnelRecord prints one record in the two-line create/show format.
func printTunnelRecord(w io.Writer, rec tunnel.Record) {
	fmt.Fprintf(w, "instance %s: localhost:%d -> %s:%d (pid %d, up %s)\n",
		rec.InstanceID, rec.LocalPort, rec.SSHHost, rec.RemotePort, rec.PID,
		util.FormatElapsed(time.Since(rec.CreatedAt)))
	fmt.Fprintln(w, rec.URL())
}

const tunnelTableFormat = "%-14s %10s %12s %8s %9s  %s\n"

// printTunnelTable prints records as a plain table, ordered by local port
// as List returns them.
func printTunnelTable(w io.Writer, records []tunnel.Record) {
	fmt.Fprintf(w, tunnelTableFormat,
		"INSTANCE", "LOCAL PORT", "REMOTE PORT", "PID", "UPTIME", "URL")
	for _, rec := range records {
		fmt.Fprintf(w, tunnelTableFormat,
			rec.InstanceID,
			fmt.Sprintf("%d", rec.LocalPort),
			fmt.Sprintf("%d", rec.RemotePort),
			fmt.Sprintf("%d", rec.PID),
			util.FormatElapsed(time.Since(rec.CreatedAt)),
			rec.URL(),
		)
	}
}
