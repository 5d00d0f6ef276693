package remote

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/logging"
)

// keepaliveInterval is how often the cached connection is pinged while idle.
// Cloud NAT gateways drop silent TCP flows well before the monitor finishes,
// so the interval stays under typical idle cutoffs.
const keepaliveInterval = 30 * time.Second

// Client is the production Shell. It authenticates with the instance's
// private key and caches a single connection across calls, so a monitoring
// run reuses one TCP flow instead of redialing every poll.
//
// Host keys are not verified: instances boot with freshly generated host
// keys, so pinning would fail on every provisioning cycle.
type Client struct {
	connectTimeout time.Duration
	commandTimeout time.Duration
	logger         *logging.Logger

	mu   sync.Mutex
	conn *ssh.Client
	stop chan struct{}
}

// NewClient creates a Client from the SSH configuration. A nil logger
// disables logging.
func NewClient(cfg config.SSHConfig, logger *logging.Logger) *Client {
	defaults := config.Default().SSH
	if cfg.ConnectTimeoutSeconds <= 0 {
		cfg.ConnectTimeoutSeconds = defaults.ConnectTimeoutSeconds
	}
	if cfg.CommandTimeoutSeconds <= 0 {
		cfg.CommandTimeoutSeconds = defaults.CommandTimeoutSeconds
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Client{
		connectTimeout: cfg.ConnectTimeout(),
		commandTimeout: cfg.CommandTimeout(),
		logger:         logger,
	}
}

// Run executes command on the instance and returns its combined output.
// Output is returned even when the command fails, since remote diagnostics
// usually arrive on stderr.
func (c *Client) Run(ctx context.Context, h instance.Handle, command string) (string, error) {
	conn, err := c.ensureConnected(ctx, h)
	if err != nil {
		return "", err
	}

	session, err := conn.NewSession()
	if err != nil {
		// A cached connection that died between polls surfaces here; drop
		// it so the caller's retry dials fresh.
		c.dropConn(conn)
		return "", errors.Wrap(err, "open ssh session")
	}
	defer session.Close()

	cmdCtx := ctx
	if c.commandTimeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case <-cmdCtx.Done():
		session.Close()
		c.dropConn(conn)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.NewTimeoutError(fmt.Sprintf("remote command on %s", h.Addr()), c.commandTimeout).WithCause(cmdCtx.Err())
	case r := <-done:
		if r.err != nil {
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				// The transport is healthy; only the command failed.
				return string(r.out), errors.Wrapf(r.err, "remote command exited %d", exitErr.ExitStatus())
			}
			c.dropConn(conn)
			return string(r.out), errors.Wrap(r.err, "remote command failed")
		}
		return string(r.out), nil
	}
}

// ensureConnected returns the cached connection, dialing one if needed.
func (c *Client) ensureConnected(ctx context.Context, h instance.Handle) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	keyPath, err := instance.ResolveKeyPath(h.KeyPath)
	if err != nil {
		return nil, err
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read ssh key %s", keyPath)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, errors.Wrapf(err, "parse ssh key %s", keyPath)
	}

	sshCfg := &ssh.ClientConfig{
		User:            h.EffectiveUser(),
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.connectTimeout,
	}

	// Dial in a goroutine so cancellation is honored; ssh.Dial itself only
	// bounds the TCP connect.
	var conn *ssh.Client
	var dialErr error
	dialDone := make(chan struct{})
	go func() {
		defer close(dialDone)
		conn, dialErr = ssh.Dial("tcp", h.Addr(), sshCfg)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-dialDone:
		if dialErr != nil {
			return nil, errors.Wrapf(dialErr, "dial %s", h.Addr())
		}
	}

	c.conn = conn
	c.stop = make(chan struct{})
	go c.keepaliveLoop(conn, c.stop)

	c.logger.Debug("ssh connected", "addr", h.Addr(), "user", sshCfg.User)
	return conn, nil
}

// keepaliveLoop pings conn until stop closes or a ping fails.
func (c *Client) keepaliveLoop(conn *ssh.Client, stop chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.logger.Debug("ssh keepalive failed", "error", err.Error())
				c.dropConn(conn)
				return
			}
		}
	}
}

// dropConn closes conn if it is still the cached connection. The identity
// check keeps a stale keepalive goroutine from tearing down a replacement
// connection.
func (c *Client) dropConn(conn *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.closeLocked()
}

// Close tears down the cached connection, if any. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
