package models

import (
	"context"
	"sync"
	"sync/atomic"
)

// Store holds the current configuration snapshot behind an atomic pointer.
// Readers always observe either the entirely-old or entirely-new snapshot,
// never a mix; Swap replaces the snapshot wholesale.
type Store struct {
	snapshot atomic.Pointer[Snapshot]

	readyOnce sync.Once
	ready     chan struct{}
}

// NewStore returns an empty store. Current returns nil until the first Swap.
func NewStore() *Store {
	return &Store{ready: make(chan struct{})}
}

// Current returns the latest snapshot, or nil before the first Swap.
func (s *Store) Current() *Snapshot {
	return s.snapshot.Load()
}

// Swap installs a new snapshot and marks the store ready.
func (s *Store) Swap(next *Snapshot) {
	if next == nil {
		return
	}
	s.snapshot.Store(next)
	s.readyOnce.Do(func() { close(s.ready) })
}

// Ready reports whether a snapshot has ever been installed.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Wait blocks until the first snapshot is installed or ctx expires. It
// bounds only the cold-start path: once a snapshot exists Wait returns
// immediately.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
