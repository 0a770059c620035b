// Package testutil provides deterministic time and label sources for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock yields strictly increasing UTC timestamps for tests that need
// distinct but reproducible dates (test runs, reviews).
//
// Unlike the wall clock, a Clock can be reset so the same scenario
// produces identical timestamps on every run.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int
}

// NewClock creates a clock. The first call to Next returns start; each
// further call advances by step.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{start: start.UTC(), step: step}
}

// Next returns the next timestamp.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Current returns the most recently issued timestamp without advancing.
// Before the first Next call it returns start.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == 0 {
		return c.start
	}
	return c.start.Add(time.Duration(c.calls-1) * c.step)
}

// Reset rewinds the clock so the next call to Next returns start again.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
