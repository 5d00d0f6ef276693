package tunnel

import (
	"fmt"
	"time"
)

// FileName is the tunnels document's name under the state directory.
const FileName = "tunnels.json"

// Record describes one forwarding subprocess. Records outlive the CLI run
// that created them; the PID is re-verified with a liveness probe on every
// read instead of being trusted.
type Record struct {
	InstanceID string    `json:"instance_id"`
	LocalPort  int       `json:"local_port"`
	SSHHost    string    `json:"ssh_host"`
	SSHPort    int       `json:"ssh_port"`
	RemotePort int       `json:"remote_port"`
	PID        int       `json:"pid"`
	CreatedAt  time.Time `json:"created_at"`
	SSHKeyPath string    `json:"ssh_key_path"`
}

// document is the persisted tunnel table, keyed by instance ID.
type document struct {
	Tunnels map[string]Record `json:"tunnels"`
}

// URL returns the local address the forwarded service answers on.
func (r Record) URL() string {
	return fmt.Sprintf("http://localhost:%d", r.LocalPort)
}

// Forward renders the forwarding spec in ssh -L form.
func (r Record) Forward() string {
	return fmt.Sprintf("%d:localhost:%d", r.LocalPort, r.RemotePort)
}
