// Package state persists berth's JSON documents on the local filesystem.
//
// berth has no daemon: every CLI invocation reads the current state from
// disk, mutates it, and exits. The package provides the two primitives that
// make this safe across concurrent invocations:
//
//   - [Store]: a generic JSON document store with atomic writes (temp file,
//     fsync, rename), so a crashed writer never leaves a half-written
//     document behind. A missing file decodes to the zero value, which means
//     deleting a document resets it.
//   - [FileLock]: an exclusive cross-process lock backed by an O_EXCL lock
//     file recording the holder's pid. Locks held by dead processes are
//     treated as stale, removed, and re-acquired. Acquisition polls with a
//     bounded wait and fails with [errors.ErrLockBusy] once the wait elapses.
//
// # Basic Usage
//
//	store := state.NewStore[portsDoc](filepath.Join(dir, "ports.json"), 5*time.Second)
//
//	err := store.WithLock(ctx, func() error {
//	    doc, err := store.Load()
//	    if err != nil {
//	        return err
//	    }
//	    doc.Allocations["12345"] = 8188
//	    return store.Save(doc)
//	})
//
// Reads that tolerate slightly stale data may call Load without the lock;
// every read-modify-write sequence must run inside WithLock.
package state
