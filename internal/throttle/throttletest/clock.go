// Package throttletest provides a manual clock for tests of time-driven code.
package throttletest

import (
	"sync"
	"time"
)

// Clock is a fake clock whose After advances time immediately.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	waited time.Duration
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After moves the clock forward by d and returns a channel that already fired.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	c.waited += d

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the clock forward without recording a wait.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Waits returns every chunk passed to After.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// Waited returns the total time spent in After.
func (c *Clock) Waited() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waited
}

// Reset forgets recorded waits.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = nil
	c.waited = 0
}
