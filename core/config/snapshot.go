package config

import (
	"sync/atomic"
	"time"
)

// Runtime is the slice of configuration the scheduler tunes while running.
// It is always replaced as a whole so concurrent readers never observe a
// half-updated combination of interval and linger.
type Runtime struct {
	PollInterval time.Duration
	BatchLinger  time.Duration
}

// RuntimeStore holds the current Runtime behind a single atomic pointer.
type RuntimeStore struct {
	current atomic.Pointer[Runtime]
}

// NewRuntimeStore seeds the store with the configured starting values.
func NewRuntimeStore(initial Runtime) *RuntimeStore {
	s := &RuntimeStore{}
	s.current.Store(&initial)
	return s
}

// Current returns a copy of the active runtime configuration.
func (s *RuntimeStore) Current() Runtime {
	return *s.current.Load()
}

// Replace swaps in a new runtime configuration atomically.
func (s *RuntimeStore) Replace(next Runtime) {
	s.current.Store(&next)
}
