// Package testutil provides shared test fixtures.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a record.Clock pinned to a settable instant, so derived
// keys and stored timestamps are deterministic in tests.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock pins the clock to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock. Used to simulate day boundaries between
// operations.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
