package remote

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/creack/pty"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/instance"
)

// followInitialLines is how much history tail prints before following.
const followInitialLines = 100

// FollowLogs streams the provisioning log to w until ctx is canceled or the
// connection drops. It shells out to the system ssh under a local pty: with
// a tty on both ends the remote tail line-buffers, and the remote process is
// killed when the connection closes instead of lingering on the instance.
func FollowLogs(ctx context.Context, h instance.Handle, logPath string, w io.Writer) error {
	if logPath == "" {
		logPath = config.Default().Monitor.RemoteLog
	}
	keyPath, err := instance.ResolveKeyPath(h.KeyPath)
	if err != nil {
		return err
	}

	args := []string{
		"-t",
		"-p", strconv.Itoa(h.SSHPort),
		"-i", keyPath,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
		fmt.Sprintf("%s@%s", h.EffectiveUser(), h.SSHHost),
		fmt.Sprintf("tail -n %d -F %s", followInitialLines, shellQuote(logPath)),
	}

	cmd := exec.CommandContext(ctx, "ssh", args...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return errors.Wrap(err, "start ssh under pty")
	}
	defer ptmx.Close()

	// The pty read errors (EIO on Linux) once the child exits; that is the
	// normal end of stream, not a failure.
	_, _ = io.Copy(w, ptmx)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if waitErr != nil {
		return errors.Wrapf(waitErr, "ssh exited while following %s", logPath)
	}
	return nil
}
