// Package clock abstracts the millisecond wall clock used to stamp events
// and epochs, so stores and the continuum engine can run against a
// deterministic clock in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies millisecond Unix timestamps.
//
// Implemented by System (production) and Manual (tests).
type Clock interface {
	NowMS() int64
}

// System reads the real wall clock.
//
// Thread-safety: System is stateless and safe for concurrent use.
type System struct{}

// NowMS returns the current Unix time in milliseconds.
func (System) NowMS() int64 {
	return time.Now().UnixMilli()
}

// Manual is a settable clock for deterministic tests.
//
// Unlike System, Manual only moves when told to, so the same test scenario
// produces identical timestamps on every run.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Manual struct {
	mu sync.Mutex
	ms int64
}

// NewManual creates a manual clock starting at the given millisecond time.
func NewManual(ms int64) *Manual {
	return &Manual{ms: ms}
}

// NowMS returns the clock's current time without advancing it.
func (c *Manual) NowMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d milliseconds.
// Negative deltas are allowed; callers simulating clock skew rely on it.
func (c *Manual) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d
}

// Set moves the clock to an absolute millisecond time.
func (c *Manual) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}
