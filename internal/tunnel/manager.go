// Package tunnel manages the detached ssh subprocesses that forward a local
// port to a service port on an instance.
//
// Tunnels deliberately outlive the CLI invocation that created them. The
// manager therefore never holds live process handles: every tunnel is a
// persisted Record in tunnels.json, and its PID is probed on each read. Dead
// records are pruned lazily during create, get, and list; there is no daemon
// sweeping in the background.
//
// # Main Types
//
//   - Record: one persisted tunnel (ports, endpoints, pid)
//   - Manager: create/stop/list on top of the state store and port allocator
//
// # Thread Safety
//
// All mutations run under the tunnels document's file lock, which also
// serializes concurrent berth processes. The manager acquires the ports
// document's lock only while holding the tunnels lock, never the reverse.
package tunnel

import (
	"context"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/logging"
	"github.com/rigstead/berth/internal/ports"
	"github.com/rigstead/berth/internal/state"
	"github.com/rigstead/berth/internal/util"
)

// stopPollInterval is how often a stopping tunnel's pid is re-probed while
// waiting for SIGTERM to take effect.
const stopPollInterval = 50 * time.Millisecond

// Manager owns the tunnels document and the forwarding subprocesses it
// records.
type Manager struct {
	store  *state.Store[document]
	ports  *ports.Allocator
	bus    *event.Bus
	logger *logging.Logger

	graceDelay        time.Duration
	stopGrace         time.Duration
	keepaliveSeconds  int
	keepaliveCount    int
	defaultRemotePort int

	// test seams; production values set by New
	spawn  func(args []string) (proc, error)
	alive  func(pid int) bool
	signal func(pid int, sig syscall.Signal) error
}

// Options configure a Manager. Zero fields fall back to the config defaults;
// Ports is required.
type Options struct {
	StateDir          string
	Ports             *ports.Allocator
	Bus               *event.Bus
	Logger            *logging.Logger
	LockWait          time.Duration
	GraceDelay        time.Duration // post-spawn wait before declaring the child established
	StopGrace         time.Duration // SIGTERM-to-SIGKILL escalation window
	KeepaliveSeconds  int           // ServerAliveInterval for the ssh child
	KeepaliveCount    int           // ServerAliveCountMax for the ssh child
	DefaultRemotePort int           // remote port used when a create passes 0
}

// New creates a Manager persisting to <state-dir>/tunnels.json.
func New(opts Options) *Manager {
	defaults := config.Default()
	if opts.LockWait <= 0 {
		opts.LockWait = defaults.State.LockWait()
	}
	if opts.GraceDelay <= 0 {
		opts.GraceDelay = defaults.Tunnel.GraceDelay()
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaults.Tunnel.StopGrace()
	}
	if opts.KeepaliveSeconds <= 0 {
		opts.KeepaliveSeconds = defaults.Tunnel.KeepaliveIntervalSeconds
	}
	if opts.KeepaliveCount <= 0 {
		opts.KeepaliveCount = defaults.Tunnel.KeepaliveCountMax
	}
	if opts.DefaultRemotePort <= 0 {
		opts.DefaultRemotePort = defaults.Tunnel.DefaultRemotePort
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}

	return &Manager{
		store:             state.NewStore[document](filepath.Join(opts.StateDir, FileName), opts.LockWait),
		ports:             opts.Ports,
		bus:               opts.Bus,
		logger:            opts.Logger.WithComponent("tunnel"),
		graceDelay:        opts.GraceDelay,
		stopGrace:         opts.StopGrace,
		keepaliveSeconds:  opts.KeepaliveSeconds,
		keepaliveCount:    opts.KeepaliveCount,
		defaultRemotePort: opts.DefaultRemotePort,
		spawn:             spawnForward,
		alive:             util.ProcessAlive,
		signal:            syscall.Kill,
	}
}

// Create returns the instance's tunnel, spawning one if needed. An existing
// record whose process is alive is returned unchanged; a record whose
// process is gone is discarded first, exactly as if it never existed. The
// whole sequence runs under the tunnels lock, so two concurrent creates for
// the same instance yield one subprocess.
//
// remotePort 0 selects the configured default.
func (m *Manager) Create(ctx context.Context, h instance.Handle, remotePort int) (Record, error) {
	if err := h.Validate(); err != nil {
		return Record{}, err
	}
	if remotePort <= 0 {
		remotePort = m.defaultRemotePort
	}

	var rec Record
	var reused bool
	err := m.store.WithLock(ctx, func() error {
		doc, err := m.store.Load()
		if err != nil {
			return err
		}
		if doc.Tunnels == nil {
			doc.Tunnels = make(map[string]Record)
		}

		if prev, ok := doc.Tunnels[h.ID]; ok {
			if m.alive(prev.PID) {
				rec, reused = prev, true
				return nil
			}
			// The recorded forward died without a berth run noticing.
			// Discard it and rebuild from scratch.
			delete(doc.Tunnels, h.ID)
			if err := m.store.Save(doc); err != nil {
				return err
			}
			if err := m.ports.Release(ctx, h.ID); err != nil {
				return err
			}
			m.logger.Warn("dead tunnel record discarded",
				"instance_id", h.ID, "pid", prev.PID, "local_port", prev.LocalPort)
			m.bus.Publish(event.NewTunnelPrunedEvent(h.ID, prev.LocalPort, prev.PID))
		}

		keyPath, err := instance.ResolveKeyPath(h.KeyPath)
		if err != nil {
			return err
		}

		localPort, err := m.ports.Allocate(ctx, h.ID)
		if err != nil {
			return err
		}

		child, err := m.spawn(forwardArgs(h, keyPath, localPort, remotePort, m.keepaliveSeconds, m.keepaliveCount))
		if err != nil {
			m.releaseQuietly(ctx, h.ID)
			return errors.NewTunnelError("failed to start ssh forward", err).
				WithInstanceID(h.ID).WithLocalPort(localPort)
		}

		// The child needs a moment to authenticate and bind the local port;
		// an immediate exit means bad credentials or an unreachable host.
		waitCh := make(chan error, 1)
		go func() { waitCh <- child.Wait() }()
		select {
		case <-waitCh:
			m.releaseQuietly(ctx, h.ID)
			return errors.NewTunnelError("tunnel died immediately: check credentials/reachability",
				errors.ErrTunnelDied).
				WithInstanceID(h.ID).WithLocalPort(localPort).WithPID(child.Pid())
		case <-time.After(m.graceDelay):
		}

		rec = Record{
			InstanceID: h.ID,
			LocalPort:  localPort,
			SSHHost:    h.SSHHost,
			SSHPort:    h.SSHPort,
			RemotePort: remotePort,
			PID:        child.Pid(),
			CreatedAt:  time.Now(),
			SSHKeyPath: keyPath,
		}
		doc.Tunnels[h.ID] = rec
		return m.store.Save(doc)
	})
	if err != nil {
		return Record{}, err
	}

	if reused {
		m.logger.Debug("tunnel already active",
			"instance_id", h.ID, "local_port", rec.LocalPort, "pid", rec.PID)
	} else {
		m.logger.Info("tunnel created", "instance_id", h.ID,
			"local_port", rec.LocalPort, "remote_port", rec.RemotePort, "pid", rec.PID)
	}
	m.bus.Publish(event.NewTunnelCreatedEvent(h.ID, rec.LocalPort, rec.RemotePort, rec.PID, reused))
	return rec, nil
}

// Get returns the instance's tunnel if its process is alive. A record whose
// process is gone is pruned, its port released, and a not-found error
// returned.
func (m *Manager) Get(ctx context.Context, instanceID string) (Record, error) {
	if instanceID == "" {
		return Record{}, errors.NewValidationError("instance id cannot be empty").WithField("id")
	}

	var rec Record
	var found bool
	var stale *Record
	err := m.store.WithLock(ctx, func() error {
		doc, err := m.store.Load()
		if err != nil {
			return err
		}
		r, ok := doc.Tunnels[instanceID]
		if !ok {
			return nil
		}
		if m.alive(r.PID) {
			rec, found = r, true
			return nil
		}
		delete(doc.Tunnels, instanceID)
		stale = &r
		return m.store.Save(doc)
	})
	if err != nil {
		return Record{}, err
	}

	if stale != nil {
		m.releaseQuietly(ctx, instanceID)
		m.logger.Info("dead tunnel pruned",
			"instance_id", instanceID, "pid", stale.PID, "local_port", stale.LocalPort)
		m.bus.Publish(event.NewTunnelPrunedEvent(instanceID, stale.LocalPort, stale.PID))
	}
	if !found {
		return Record{}, errors.NewNotFoundError("tunnel", instanceID).WithCause(errors.ErrTunnelNotFound)
	}
	return rec, nil
}

// Stop terminates the instance's tunnel, removes its record, and releases
// its port. Stopping an instance with no record is a no-op.
func (m *Manager) Stop(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return errors.NewValidationError("instance id cannot be empty").WithField("id")
	}

	var stopped *Record
	err := m.store.WithLock(ctx, func() error {
		doc, err := m.store.Load()
		if err != nil {
			return err
		}
		rec, ok := doc.Tunnels[instanceID]
		if !ok {
			return nil
		}
		if m.alive(rec.PID) {
			m.terminate(rec.PID)
		}
		delete(doc.Tunnels, instanceID)
		if err := m.store.Save(doc); err != nil {
			return err
		}
		stopped = &rec
		return nil
	})
	if err != nil {
		return err
	}
	if stopped == nil {
		m.logger.Debug("no tunnel to stop", "instance_id", instanceID)
		return nil
	}

	if err := m.ports.Release(ctx, instanceID); err != nil {
		return err
	}
	m.logger.Info("tunnel stopped",
		"instance_id", instanceID, "local_port", stopped.LocalPort, "pid", stopped.PID)
	m.bus.Publish(event.NewTunnelStoppedEvent(instanceID, stopped.LocalPort, stopped.PID))
	return nil
}

// StopAll stops every live tunnel and reports how many were stopped.
// Failures are aggregated so one stuck tunnel does not strand the rest.
func (m *Manager) StopAll(ctx context.Context) (int, error) {
	live, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(live))
	for _, rec := range live {
		ids = append(ids, rec.InstanceID)
	}
	sort.Strings(ids)

	var stopped int
	var errs []error
	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			errs = append(errs, errors.Wrapf(err, "stop tunnel for instance %s", id))
			continue
		}
		stopped++
	}
	return stopped, errors.Join(errs...)
}

// List returns the live tunnels sorted by local port. Any record whose
// process is gone is pruned and its port released as a side effect; with no
// daemon around, this lazy sweep is the only garbage collection tunnels get.
func (m *Manager) List(ctx context.Context) ([]Record, error) {
	var live []Record
	var pruned []Record
	err := m.store.WithLock(ctx, func() error {
		doc, err := m.store.Load()
		if err != nil {
			return err
		}
		for id, rec := range doc.Tunnels {
			if m.alive(rec.PID) {
				live = append(live, rec)
				continue
			}
			delete(doc.Tunnels, id)
			pruned = append(pruned, rec)
		}
		if len(pruned) == 0 {
			return nil
		}
		return m.store.Save(doc)
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range pruned {
		m.releaseQuietly(ctx, rec.InstanceID)
		m.logger.Info("dead tunnel pruned",
			"instance_id", rec.InstanceID, "pid", rec.PID, "local_port", rec.LocalPort)
		m.bus.Publish(event.NewTunnelPrunedEvent(rec.InstanceID, rec.LocalPort, rec.PID))
	}

	sort.Slice(live, func(i, j int) bool { return live[i].LocalPort < live[j].LocalPort })
	return live, nil
}

// terminate asks pid to exit and escalates to SIGKILL when it is still
// around after the stop grace.
func (m *Manager) terminate(pid int) {
	if err := m.signal(pid, syscall.SIGTERM); err != nil {
		return // already gone
	}

	deadline := time.Now().Add(m.stopGrace)
	for time.Now().Before(deadline) {
		if !m.alive(pid) {
			return
		}
		time.Sleep(stopPollInterval)
	}
	if m.alive(pid) {
		m.signal(pid, syscall.SIGKILL)
		m.logger.Warn("tunnel process killed after grace", "pid", pid)
	}
}

// releaseQuietly frees the instance's port allocation on cleanup paths where
// a release failure must not mask the operation's own outcome.
func (m *Manager) releaseQuietly(ctx context.Context, instanceID string) {
	if err := m.ports.Release(ctx, instanceID); err != nil {
		m.logger.Warn("port not released", "instance_id", instanceID, "error", err)
	}
}
