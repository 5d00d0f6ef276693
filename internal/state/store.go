package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rigstead/berth/internal/errors"
)

// Store is a generic JSON document store. Each store owns one file and a
// sibling <file>.lock guarding cross-process mutations.
type Store[T any] struct {
	path string
	lock *FileLock
}

// NewStore creates a store for the document at path. The parent directory is
// created on first Save. lockWait bounds how long WithLock waits for the
// sibling lock before giving up.
func NewStore[T any](path string, lockWait time.Duration) *Store[T] {
	return &Store[T]{
		path: path,
		lock: NewFileLock(path+".lock", lockWait),
	}
}

// Path returns the document's location on disk.
func (s *Store[T]) Path() string {
	return s.path
}

// Load reads and decodes the document. A missing file yields the zero value,
// so deleting the file resets the store.
func (s *Store[T]) Load() (T, error) {
	var doc T

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, errors.NewStateError("failed to read state document", err).WithPath(s.path)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, errors.NewStateError("failed to decode state document",
			fmt.Errorf("%w: %v", errors.ErrStateCorrupted, err)).WithPath(s.path)
	}
	return doc, nil
}

// Save encodes the document and atomically replaces the file.
func (s *Store[T]) Save(doc T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewStateError("failed to encode state document", err).WithPath(s.path)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.NewStateError("failed to create state directory", err).WithPath(s.path)
	}

	if err := atomicWriteFile(s.path, data, 0644); err != nil {
		return errors.NewStateError("failed to write state document", err).WithPath(s.path)
	}
	return nil
}

// Delete removes the document. A missing file is a no-op.
func (s *Store[T]) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.NewStateError("failed to delete state document", err).WithPath(s.path)
	}
	return nil
}

// WithLock acquires the document's sibling lock, runs fn, and releases the
// lock. Every read-modify-write sequence must go through it.
func (s *Store[T]) WithLock(ctx context.Context, fn func() error) error {
	lock, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	return fn()
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. The target file is never observable in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Temp file in the same directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
