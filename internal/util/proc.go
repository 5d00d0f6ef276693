package util

import (
	"os"
	"syscall"
)

// ProcessAlive reports whether a process with the given PID exists.
// Signal 0 probes for existence without affecting the target.
//
// PIDs <= 0 are never alive: signal 0 to pid 0 would probe the caller's own
// process group and always succeed, and negative pids address whole groups.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
