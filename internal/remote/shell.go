// Package remote talks to instances over SSH. It provides one-shot command
// execution, provisioning log excerpts for the readiness monitor, and live
// log following for the logs command.
//
// # Main Types
//
//   - Shell: the command execution interface the monitor depends on
//   - Client: the production Shell backed by golang.org/x/crypto/ssh
//   - LogPoller: fetches the tail of the instance provisioning log
//
// # Thread Safety
//
// Client is safe for concurrent use; it caches at most one connection and
// guards it with a mutex. LogPoller is stateless apart from its Shell.
package remote

import (
	"context"
	"strings"

	"github.com/rigstead/berth/internal/instance"
)

// Shell runs a command on an instance and returns its combined output.
// Implementations must honor ctx cancellation. The production
// implementation is Client; tests substitute fakes.
type Shell interface {
	Run(ctx context.Context, h instance.Handle, command string) (string, error)
}

// shellQuote wraps s in single quotes for safe inclusion in a remote
// command line. Embedded single quotes are closed, escaped, and reopened.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
