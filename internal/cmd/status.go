package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rigstead/berth/internal/monitor"
	"github.com/rigstead/berth/internal/remote"
	"github.com/rigstead/berth/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status <instance-id>",
	Short: "Check an instance's provisioning stage once",
	Long: `Fetch the provisioning log once and report the stage it indicates.
Unlike monitor, this does not wait for anything: one fetch, one line.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	statusFlags     instanceFlags
	statusRemoteLog string
	statusLines     int
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusFlags.register(statusCmd)
	statusCmd.Flags().StringVar(&statusRemoteLog, "remote-log", "", "provisioning log path on the instance")
	statusCmd.Flags().IntVar(&statusLines, "lines", 0, "log lines to fetch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	if statusRemoteLog != "" {
		cfg.Monitor.RemoteLog = statusRemoteLog
	}
	if cmd.Flags().Changed("lines") {
		cfg.Monitor.LogLines = statusLines
	}

	h := statusFlags.handle(cfg, args[0])
	if err := h.Validate(); err != nil {
		return err
	}

	client := rt.sshClient()
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	poller := remote.NewLogPoller(client, cfg.Monitor.RemoteLog, cfg.Monitor.LogLines)
	excerpt, err := poller.Fetch(ctx, h)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// An excerpt with no marker at all means the instance has not written
	// anything classifiable yet.
	c := monitor.Classify(excerpt)
	stage := monitor.StageInitializing
	if c.Matched {
		stage = c.Stage
	}
	fmt.Fprintf(out, "instance %s: %s\n", h.ID, stage)

	if c.Failed && c.ErrorLine != "" {
		fmt.Fprintf(out, "  %s\n", c.ErrorLine)
	}
	if p, ok := monitor.ExtractProgress(excerpt); ok && stage == monitor.StageDownloading {
		var parts []string
		if p.Announced > 0 {
			parts = append(parts, fmt.Sprintf("models %d/%d", p.Completed, p.Announced))
		}
		if p.Bytes > 0 {
			parts = append(parts, util.FormatBytes(p.Bytes))
		}
		if p.Speed != "" {
			parts = append(parts, p.Speed)
		}
		if len(parts) > 0 {
			fmt.Fprintf(out, "  %s\n", strings.Join(parts, ", "))
		}
	}
	if url := monitor.ExtractReadyURL(excerpt); url != "" && stage == monitor.StageReady {
		fmt.Fprintf(out, "  GUI: %s\n", url)
	}
	return nil
}
