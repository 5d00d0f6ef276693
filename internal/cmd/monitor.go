package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/monitor"
	"github.com/rigstead/berth/internal/remote"
	"github.com/rigstead/berth/internal/tui"
	"github.com/rigstead/berth/internal/util"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <instance-id>",
	Short: "Watch an instance's provisioning log until it is ready",
	Long: `Poll the instance's provisioning log over SSH and report stage
transitions until the application is ready to serve (or provisioning
fails, stalls, or the instance becomes unreachable).

The exit code distinguishes the outcomes: 0 ready, 3 unreachable,
4 timeout or stall, 1 provisioning failure.

Examples:
  # Watch instance 12345 with plain line output
  berth monitor 12345 --host ssh4.vast.ai --ssh-port 12034

  # Full-screen checklist view
  berth monitor 12345 --host ssh4.vast.ai --ssh-port 12034 --tui

  # Give up if no stage advance happens for 5 minutes
  berth monitor 12345 --host ssh4.vast.ai --ssh-port 12034 --stall-threshold 5`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorFlags     instanceFlags
	monitorTimeout   int
	monitorPoll      int
	monitorStall     int
	monitorRemoteLog string
	monitorLines     int
	monitorTUI       bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorFlags.register(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorTimeout, "timeout", 0, "overall timeout in minutes (0 disables)")
	monitorCmd.Flags().IntVar(&monitorPoll, "poll-interval", 0, "seconds between polls")
	monitorCmd.Flags().IntVar(&monitorStall, "stall-threshold", 0, "minutes without a stage advance before giving up (0 disables)")
	monitorCmd.Flags().StringVar(&monitorRemoteLog, "remote-log", "", "provisioning log path on the instance")
	monitorCmd.Flags().IntVar(&monitorLines, "lines", 0, "log lines fetched per poll")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "render the full-screen checklist view")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	// Flags override the config only when set, so an explicit 0 still means
	// "disabled" for the timeout and stall threshold.
	cfg := rt.cfg
	if cmd.Flags().Changed("timeout") {
		cfg.Monitor.TimeoutMinutes = monitorTimeout
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.Monitor.PollIntervalSeconds = monitorPoll
	}
	if cmd.Flags().Changed("stall-threshold") {
		cfg.Monitor.StallThresholdMinutes = monitorStall
	}
	if monitorRemoteLog != "" {
		cfg.Monitor.RemoteLog = monitorRemoteLog
	}
	if cmd.Flags().Changed("lines") {
		cfg.Monitor.LogLines = monitorLines
	}

	h := monitorFlags.handle(cfg, args[0])
	if err := h.Validate(); err != nil {
		return err
	}

	client := rt.sshClient()
	defer client.Close()

	poller := remote.NewLogPoller(client, cfg.Monitor.RemoteLog, cfg.Monitor.LogLines)
	mon := monitor.New(poller, cfg.Monitor, rt.bus, rt.logger)

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()

	var res monitor.Result
	if monitorTUI {
		res, err = tui.NewMonitor(mon, rt.bus, h).Run(ctx)
	} else {
		sub := rt.bus.SubscribeAll(monitorEventPrinter(out))
		defer rt.bus.Unsubscribe(sub)
		res, err = mon.Run(ctx, h)
	}

	printMonitorResult(out, h, res)
	return err
}

// monitorEventPrinter renders bus events as plain lines, one per happening.
func monitorEventPrinter(w io.Writer) event.Handler {
	return func(e event.Event) {
		switch e := e.(type) {
		case event.StageChangedEvent:
			fmt.Fprintf(w, "[%s] %s -> %s\n",
				util.FormatElapsed(e.Elapsed), e.PreviousStage, e.CurrentStage)

		case event.DownloadProgressEvent:
			line := fmt.Sprintf("[%s] downloading", util.FormatElapsed(e.Elapsed))
			if e.Announced > 0 {
				line += fmt.Sprintf(" %d/%d models", e.Completed, e.Announced)
			}
			if e.Bytes > 0 {
				line += " " + util.FormatBytes(e.Bytes)
			}
			if e.Speed != "" {
				line += " at " + e.Speed
			}
			fmt.Fprintln(w, line)

		case event.PollFailedEvent:
			fmt.Fprintf(w, "poll failed (%d/%d): %s\n", e.Consecutive, e.MaxFailures, e.Err)
		}
	}
}

// printMonitorResult prints the terminal outcome line.
func printMonitorResult(w io.Writer, h instance.Handle, res monitor.Result) {
	elapsed := util.FormatElapsed(res.Elapsed)
	switch res.Reason {
	case monitor.ReasonReady:
		fmt.Fprintf(w, "instance %s ready in %s\n", h.ID, elapsed)
		if res.ReadyURL != "" {
			fmt.Fprintf(w, "GUI: %s\n", res.ReadyURL)
		}
	case monitor.ReasonCanceled:
		fmt.Fprintf(w, "monitoring canceled at stage %s after %s\n", res.Stage, elapsed)
	default:
		fmt.Fprintf(w, "instance %s failed after %s: %s\n", h.ID, elapsed, res.Reason)
	}
}
