// Package ports assigns local TCP ports to instances for tunnel forwarding.
//
// Assignments live in ports.json under the state directory and survive
// across CLI invocations, so the same instance keeps the same local port for
// as long as its allocation exists. Every mutation runs under the document's
// file lock; concurrent berth processes therefore never hand out the same
// port twice.
package ports

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"time"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/logging"
	"github.com/rigstead/berth/internal/state"
)

// FileName is the ports document's name under the state directory.
const FileName = "ports.json"

// document is the persisted allocation table.
type document struct {
	Allocations map[string]int `json:"allocations"`
}

// Allocator hands out one local port per instance.
type Allocator struct {
	store    *state.Store[document]
	basePort int
	window   int
	logger   *logging.Logger

	// probe is swapped out by tests; defaults to an OS bind probe.
	probe func(port int) bool
}

// Options configure an Allocator. Zero fields fall back to the config
// defaults.
type Options struct {
	StateDir string
	BasePort int // first candidate port
	Window   int // number of candidate ports scanned
	LockWait time.Duration
	Logger   *logging.Logger
}

// New creates an Allocator persisting to <state-dir>/ports.json.
func New(opts Options) *Allocator {
	defaults := config.Default()
	if opts.BasePort <= 0 {
		opts.BasePort = defaults.Tunnel.BasePort
	}
	if opts.Window <= 0 {
		opts.Window = defaults.Tunnel.ScanWindow
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaults.State.LockWait()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}

	return &Allocator{
		store:    state.NewStore[document](filepath.Join(opts.StateDir, FileName), opts.LockWait),
		basePort: opts.BasePort,
		window:   opts.Window,
		logger:   opts.Logger,
		probe:    probeBind,
	}
}

// Allocate returns the local port assigned to the instance, assigning one if
// needed. Repeated calls for the same instance return the same port. The scan
// starts at the base port and skips ports held by other allocations as well
// as ports something else on this machine is already listening on.
func (a *Allocator) Allocate(ctx context.Context, instanceID string) (int, error) {
	if instanceID == "" {
		return 0, errors.NewValidationError("instance id cannot be empty").WithField("id")
	}

	var port int
	err := a.store.WithLock(ctx, func() error {
		doc, err := a.store.Load()
		if err != nil {
			return err
		}
		if doc.Allocations == nil {
			doc.Allocations = make(map[string]int)
		}

		if existing, ok := doc.Allocations[instanceID]; ok {
			port = existing
			return nil
		}

		held := make(map[int]bool, len(doc.Allocations))
		for _, p := range doc.Allocations {
			held[p] = true
		}

		for candidate := a.basePort; candidate < a.basePort+a.window; candidate++ {
			if held[candidate] || !a.probe(candidate) {
				continue
			}
			doc.Allocations[instanceID] = candidate
			port = candidate
			return a.store.Save(doc)
		}

		return errors.NewPortError(
			fmt.Sprintf("scanned %d candidates", a.window), errors.ErrPortExhausted).
			WithInstanceID(instanceID).WithBasePort(a.basePort)
	})
	if err != nil {
		return 0, err
	}

	a.logger.Debug("port allocated", "instance_id", instanceID, "port", port)
	return port, nil
}

// Release frees the instance's port. Releasing an instance with no
// allocation is a no-op.
func (a *Allocator) Release(ctx context.Context, instanceID string) error {
	return a.store.WithLock(ctx, func() error {
		doc, err := a.store.Load()
		if err != nil {
			return err
		}
		port, ok := doc.Allocations[instanceID]
		if !ok {
			return nil
		}

		delete(doc.Allocations, instanceID)
		if err := a.store.Save(doc); err != nil {
			return err
		}

		a.logger.Debug("port released", "instance_id", instanceID, "port", port)
		return nil
	})
}

// List returns a snapshot of current allocations keyed by instance ID.
func (a *Allocator) List(ctx context.Context) (map[string]int, error) {
	snapshot := make(map[string]int)
	err := a.store.WithLock(ctx, func() error {
		doc, err := a.store.Load()
		if err != nil {
			return err
		}
		for id, port := range doc.Allocations {
			snapshot[id] = port
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// PruneStale drops allocations whose instance is not in activeIDs and
// returns the pruned instance IDs, sorted. Allocations can outlive their
// tunnels when a tunnel process dies without a berth invocation noticing;
// this reclaims them in one sweep.
func (a *Allocator) PruneStale(ctx context.Context, activeIDs []string) ([]string, error) {
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	var pruned []string
	err := a.store.WithLock(ctx, func() error {
		doc, err := a.store.Load()
		if err != nil {
			return err
		}

		for id := range doc.Allocations {
			if !active[id] {
				delete(doc.Allocations, id)
				pruned = append(pruned, id)
			}
		}
		if len(pruned) == 0 {
			return nil
		}

		sort.Strings(pruned)
		return a.store.Save(doc)
	})
	if err != nil {
		return nil, err
	}

	if len(pruned) > 0 {
		a.logger.Info("stale port allocations pruned", "count", len(pruned))
	}
	return pruned, nil
}

// probeBind reports whether the port can be bound on the loopback interface,
// the same check the tunnel's ssh child will effectively perform when it
// binds the local end of the forward.
func probeBind(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
