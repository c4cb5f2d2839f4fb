// SPDX-License-Identifier: MIT

// Package persistence implements the read-through-cache, single-writer JSON
// document store described for Recordings, SavedStreams and Settings.
//
// Each document is a JSON object on disk. The Recordings and SavedStreams
// documents hold their rows in an array under a single key ("recordings"
// or "streams"); neither is written or read as a bare top-level array.
// A Store[T] keeps the last-loaded value in memory; callers mutate the
// in-memory slice and either flush it immediately (Put, a durable write)
// or leave it cached for the next durable write to pick up (PutCache, for
// hot paths like per-second progress counters). A corrupt or missing file
// is treated as the store's zero value rather than an error, matching
// spec.md 4.1.
//
// Grounded on the teacher's internal/config.Config.Save atomic write
// (temp file + fsync + chmod + rename); here the actual file swap is done
// with google/renameio/v2, which additionally fsyncs the containing
// directory so the rename itself is durable across a crash — a property
// the teacher's hand-rolled version does not guarantee.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// Store holds one JSON document of type T, cached in memory after first
// load, with a single-writer discipline for durable writes.
type Store[T any] struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	loaded   bool
	cache    T
	dirty    bool // true when cache differs from what's on disk
	zeroFunc func() T
}

// New creates a store bound to path. zero, if non-nil, produces the value
// used when the file is missing or corrupt; otherwise the Go zero value of
// T is used.
func New[T any](path string, logger *slog.Logger, zero func() T) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{path: path, logger: logger, zeroFunc: zero}
}

// Get returns the cached document, loading it from disk on first use.
// Read errors (missing file, invalid JSON) yield the zero value and are
// logged, never returned, per spec.md 4.1's "corrupt or missing -> empty
// or default" rule.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	return s.cache
}

// Mutate loads the document (if needed), passes a pointer to the cached
// value to fn for in-place mutation, and marks the cache dirty. It does not
// touch disk; call Flush (or Put) to make the mutation durable.
func (s *Store[T]) Mutate(fn func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	fn(&s.cache)
	s.dirty = true
}

// PutCache replaces the cached document without writing to disk. Intended
// for hot paths (e.g. transcoder progress snapshots) where fsyncing every
// update would be wasteful; the next durable write (Put/Flush) persists it.
func (s *Store[T]) PutCache(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = v
	s.loaded = true
	s.dirty = true
}

// Put replaces the cached document and durably writes it to disk.
func (s *Store[T]) Put(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = v
	s.loaded = true
	return s.flushLocked()
}

// Flush durably writes whatever is currently cached, even if nothing
// changed since the last flush (idempotent on disk: same bytes rewritten).
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	return s.flushLocked()
}

func (s *Store[T]) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.cache = s.readLocked()
	s.loaded = true
}

func (s *Store[T]) readLocked() T {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("persistence: read failed, using default", "path", s.path, "error", err)
		}
		return s.zero()
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn("persistence: corrupt document, using default", "path", s.path, "error", err)
		return s.zero()
	}
	return v
}

func (s *Store[T]) zero() T {
	if s.zeroFunc != nil {
		return s.zeroFunc()
	}
	var v T
	return v
}

// flushLocked performs the atomic durable write. Caller must hold s.mu.
func (s *Store[T]) flushLocked() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("persistence: mkdir %s: %w", dir, err)
	}

	if err := renameio.WriteFile(s.path, data, 0o640); err != nil {
		s.logger.Error("persistence: durable write failed", "path", s.path, "error", err)
		return fmt.Errorf("persistence: write %s: %w", s.path, err)
	}

	s.dirty = false
	return nil
}

// Dirty reports whether the cache has unflushed mutations.
func (s *Store[T]) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
