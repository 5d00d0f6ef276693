package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rigstead/berth/internal/logging"
	"github.com/rigstead/berth/internal/remote"
)

var logsCmd = &cobra.Command{
	Use:   "logs [instance-id]",
	Short: "Show an instance's provisioning log, or berth's own debug log",
	Long: `With an instance ID, fetch the tail of the instance's provisioning
log over SSH, or stream it live with --follow.

Without an instance ID, read the local debug log that berth commands
append to, with optional filtering and export.

Examples:
  # Last lines of the provisioning log on instance 12345
  berth logs 12345 --host ssh4.vast.ai --ssh-port 12034

  # Stream the provisioning log until interrupted
  berth logs 12345 --host ssh4.vast.ai --ssh-port 12034 --follow

  # Local debug entries for one instance from the past hour
  berth logs --instance 12345 --since 1h --level warn

  # Export the local debug log as CSV
  berth logs --export /tmp/berth-logs.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

var (
	logsFlags     instanceFlags
	logsRemoteLog string
	logsLines     int
	logsFollow    bool

	logsLevel    string
	logsInstance string
	logsSince    time.Duration
	logsContains string
	logsTail     int
	logsExport   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsFlags.registerOptional(logsCmd)
	logsCmd.Flags().StringVar(&logsRemoteLog, "remote-log", "", "provisioning log path on the instance")
	logsCmd.Flags().IntVar(&logsLines, "lines", 0, "log lines fetched from the instance")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream the provisioning log until interrupted")

	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level for local entries (debug|info|warn|error)")
	logsCmd.Flags().StringVar(&logsInstance, "instance", "", "only local entries for this instance")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "only local entries newer than this (e.g. 30m, 2h)")
	logsCmd.Flags().StringVar(&logsContains, "contains", "", "only local entries whose message contains this text")
	logsCmd.Flags().IntVar(&logsTail, "tail", 0, "only the last N local entries")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "write local entries to this file (.json, .csv, or .txt)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 1 {
		return runLogsRemote(cmd, rt, args[0])
	}
	return runLogsLocal(cmd, rt)
}

// runLogsRemote fetches or follows the provisioning log on the instance.
func runLogsRemote(cmd *cobra.Command, rt *runtime, instanceID string) error {
	cfg := rt.cfg
	if logsRemoteLog != "" {
		cfg.Monitor.RemoteLog = logsRemoteLog
	}
	if cmd.Flags().Changed("lines") {
		cfg.Monitor.LogLines = logsLines
	}

	h := logsFlags.handle(cfg, instanceID)
	if err := h.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()

	if logsFollow {
		return remote.FollowLogs(ctx, h, cfg.Monitor.RemoteLog, out)
	}

	client := rt.sshClient()
	defer client.Close()

	poller := remote.NewLogPoller(client, cfg.Monitor.RemoteLog, cfg.Monitor.LogLines)
	excerpt, err := poller.Fetch(ctx, h)
	if err != nil {
		return err
	}
	if strings.TrimSpace(excerpt) == "" {
		fmt.Fprintln(out, "provisioning log is empty (instance may still be booting)")
		return nil
	}
	fmt.Fprintln(out, strings.TrimRight(excerpt, "\n"))
	return nil
}

// runLogsLocal reads the debug log from the state directory.
func runLogsLocal(cmd *cobra.Command, rt *runtime) error {
	entries, err := logging.AggregateLogs(rt.stateDir)
	if err != nil {
		return err
	}

	filter := logging.LogFilter{
		InstanceID:      logsInstance,
		MessageContains: logsContains,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince > 0 {
		filter.StartTime = time.Now().Add(-logsSince)
	}
	entries = logging.FilterLogs(entries, filter)

	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	out := cmd.OutOrStdout()

	if logsExport != "" {
		format := strings.TrimPrefix(filepath.Ext(logsExport), ".")
		if format == "" || strings.EqualFold(format, "txt") {
			format = "text"
		}
		if err := logging.ExportLogEntries(entries, logsExport, format); err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %d entries to %s\n", len(entries), logsExport)
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatLogEntry(e))
	}
	return nil
}

// formatLogEntry renders one debug-log entry as a single line.
func formatLogEntry(e logging.LogEntry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, " [%s] %s", e.Level, e.Message)
	if e.InstanceID != "" {
		fmt.Fprintf(&b, " instance_id=%s", e.InstanceID)
	}
	if e.Component != "" {
		fmt.Fprintf(&b, " component=%s", e.Component)
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
