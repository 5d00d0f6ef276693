package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/util"
)

// lockRetryInterval is how often Acquire re-probes a busy lock.
const lockRetryInterval = 50 * time.Millisecond

// LockInfo is the JSON body of a lock file. The recorded pid decides
// staleness: a lock whose pid is no longer alive is removed and re-acquired.
type LockInfo struct {
	HolderID   string    `json:"holder_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// FileLock is an exclusive cross-process lock backed by an O_EXCL lock file.
type FileLock struct {
	path string
	wait time.Duration
}

// NewFileLock creates a lock at path. Acquire polls until wait elapses.
func NewFileLock(path string, wait time.Duration) *FileLock {
	return &FileLock{path: path, wait: wait}
}

// Path returns the lock file's location on disk.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock, removing stale lock files left by dead processes.
// It polls a busy lock until the configured wait elapses, then fails with an
// error carrying [errors.ErrLockBusy] and the holder's pid and hostname.
func (l *FileLock) Acquire(ctx context.Context) (*Lock, error) {
	deadline := time.Now().Add(l.wait)
	for {
		lock, err := l.tryAcquire()
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, errors.ErrLockBusy) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// tryAcquire makes a single acquisition attempt.
func (l *FileLock) tryAcquire() (*Lock, error) {
	if existing, err := readLockInfo(l.path); err == nil {
		if util.ProcessAlive(existing.PID) {
			return nil, errors.NewStateError(
				fmt.Sprintf("held by PID %d on %s", existing.PID, existing.Hostname),
				errors.ErrLockBusy).WithPath(l.path)
		}
		// Stale lock from a dead process - remove it and take over
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return nil, errors.NewStateError("failed to remove stale lock", err).WithPath(l.path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, errors.NewStateError("failed to create lock directory", err).WithPath(l.path)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info := LockInfo{
		HolderID:   uuid.NewString(),
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, errors.NewStateError("failed to encode lock info", err).WithPath(l.path)
	}

	// O_EXCL fails if another process created the file between the staleness
	// check above and here
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.NewStateError("lock file appeared", errors.ErrLockBusy).WithPath(l.path)
		}
		return nil, errors.NewStateError("failed to create lock file", err).WithPath(l.path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(l.path)
		return nil, errors.NewStateError("failed to write lock file", err).WithPath(l.path)
	}

	return &Lock{info: info, path: l.path}, nil
}

// Lock is an acquired file lock.
type Lock struct {
	info     LockInfo
	path     string
	mu       sync.Mutex
	released bool
}

// Info returns the lock file contents recorded at acquisition.
func (lk *Lock) Info() LockInfo {
	return lk.info
}

// Release removes the lock file. Safe to call multiple times. The file is
// only removed while this holder still owns it, so releasing after another
// process has recycled a stale lock does not steal theirs.
func (lk *Lock) Release() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.released {
		return nil
	}

	existing, err := readLockInfo(lk.path)
	if err != nil {
		// Lock file gone or unreadable - nothing to release
		lk.released = true
		return nil
	}
	if existing.HolderID != lk.info.HolderID {
		lk.released = true
		return nil
	}

	if err := os.Remove(lk.path); err != nil && !os.IsNotExist(err) {
		return errors.NewStateError("failed to release lock", err).WithPath(lk.path)
	}
	lk.released = true
	return nil
}

// readLockInfo reads and decodes a lock file.
func readLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &info, nil
}
