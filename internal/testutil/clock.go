package testutil

import (
	"sync"
	"time"
)

// ManualTime is a settable wall clock for tests. Its Now method plugs
// into engine.WithNow so flag expiration and event windows can be driven
// without sleeping.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualTime creates a clock frozen at the given instant.
func NewManualTime(now time.Time) *ManualTime {
	return &ManualTime{now: now}
}

// Now returns the current manual instant.
func (m *ManualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to the given instant.
func (m *ManualTime) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Advance moves the clock forward by d.
func (m *ManualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
