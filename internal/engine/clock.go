package engine

import "sync/atomic"

// Clock is a monotonic logical counter numbering evaluation cycles.
// Cycle summaries and journal rows carry the seq so a sequence of cycles
// can be ordered without trusting wall-clock timestamps.
//
// Thread-safety: safe for concurrent use, though the engine's
// single-writer design means only the cycle goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
