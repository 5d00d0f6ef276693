package tunnel

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/rigstead/berth/internal/instance"
)

// proc is a spawned forwarding child as the manager sees it: enough to
// record its pid and to notice an immediate exit.
type proc interface {
	Pid() int
	Wait() error
}

type execProc struct {
	cmd *exec.Cmd
}

func (p *execProc) Pid() int    { return p.cmd.Process.Pid }
func (p *execProc) Wait() error { return p.cmd.Wait() }

// forwardArgs builds the ssh argument list for a persistent local port
// forward: no remote command, keepalive probing, and auto-accepted host keys
// because instances regenerate theirs on every boot.
func forwardArgs(h instance.Handle, keyPath string, localPort, remotePort, keepaliveSeconds, keepaliveCount int) []string {
	return []string{
		"-N",
		"-L", fmt.Sprintf("%d:localhost:%d", localPort, remotePort),
		"-p", strconv.Itoa(h.SSHPort),
		"-i", keyPath,
		"-o", fmt.Sprintf("ServerAliveInterval=%d", keepaliveSeconds),
		"-o", fmt.Sprintf("ServerAliveCountMax=%d", keepaliveCount),
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		fmt.Sprintf("%s@%s", h.EffectiveUser(), h.SSHHost),
	}
}

// spawnForward starts the ssh child detached in its own session with stdio
// on /dev/null, so the forward keeps running after this CLI process exits.
// The caller owns the returned proc and must consume Wait, which also reaps
// the child if it dies while we are still around.
func spawnForward(args []string) (proc, error) {
	cmd := exec.Command("ssh", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProc{cmd: cmd}, nil
}
