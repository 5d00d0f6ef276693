package remote

import (
	"context"
	"fmt"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/instance"
)

// LogPoller fetches the tail of the instance provisioning log.
type LogPoller struct {
	shell   Shell
	logPath string
	lines   int
}

// NewLogPoller creates a LogPoller reading the last lines of logPath via
// shell. Empty logPath and non-positive lines fall back to the monitor
// defaults.
func NewLogPoller(shell Shell, logPath string, lines int) *LogPoller {
	defaults := config.Default().Monitor
	if logPath == "" {
		logPath = defaults.RemoteLog
	}
	if lines <= 0 {
		lines = defaults.LogLines
	}
	return &LogPoller{
		shell:   shell,
		logPath: logPath,
		lines:   lines,
	}
}

// LogPath returns the remote log path being polled.
func (p *LogPoller) LogPath() string {
	return p.logPath
}

// Fetch returns the most recent log excerpt. A log file that does not exist
// yet reads as empty: early in boot the provisioning script has not started,
// and that must look like "no stage markers", not like an unreachable
// instance. Transport failures still return an error.
func (p *LogPoller) Fetch(ctx context.Context, h instance.Handle) (string, error) {
	command := fmt.Sprintf("tail -n %d %s 2>/dev/null || true", p.lines, shellQuote(p.logPath))
	return p.shell.Run(ctx, h, command)
}
