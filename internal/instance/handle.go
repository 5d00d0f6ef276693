// Package instance describes the remote GPU instances berth operates on.
//
// berth never creates, mutates, or destroys instances. A [Handle] is the
// read-only identity of an instance booted elsewhere: where to reach it over
// SSH and how to authenticate. Handles arrive from CLI flags and config, get
// validated once, and flow unchanged through the monitor, tunnel manager,
// and remote client.
package instance

import (
	"net"
	"strconv"
	"strings"

	"github.com/rigstead/berth/internal/errors"
)

// DefaultUser is the login used when a handle does not name one. GPU cloud
// images conventionally expose root over SSH.
const DefaultUser = "root"

// Handle identifies a running remote instance.
type Handle struct {
	ID      string // provider's instance identifier
	SSHHost string // host or IP the SSH daemon listens on
	SSHPort int    // SSH daemon port (providers map it to a high port per instance)
	KeyPath string // private key path; empty means auto-detect via ResolveKeyPath
	User    string // login user; empty means DefaultUser
}

// Validate checks the fields needed to reach the instance.
func (h Handle) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return errors.NewValidationError("instance id cannot be empty").WithField("id")
	}
	if strings.TrimSpace(h.SSHHost) == "" {
		return errors.NewValidationError("ssh host cannot be empty").WithField("ssh_host")
	}
	if h.SSHPort < 1 || h.SSHPort > 65535 {
		return errors.NewValidationError("ssh port must be between 1 and 65535").
			WithField("ssh_port").WithValue(h.SSHPort)
	}
	return nil
}

// EffectiveUser returns the login user, falling back to DefaultUser.
func (h Handle) EffectiveUser() string {
	if h.User == "" {
		return DefaultUser
	}
	return h.User
}

// Addr returns the "host:port" dial address of the SSH daemon.
func (h Handle) Addr() string {
	return net.JoinHostPort(h.SSHHost, strconv.Itoa(h.SSHPort))
}
