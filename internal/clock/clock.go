// Package clock supplies event timestamps.
//
// Timestamps are part of the global replay key (timestamp, aggregate id,
// version), so command handlers never call time.Now directly: they take a
// Clock, and tests take a Stepping clock whose output is fully determined.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant for a new event.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, in UTC.
type System struct{}

// Now returns time.Now in UTC with the monotonic reading stripped.
func (System) Now() time.Time {
	return time.Now().UTC().Round(0)
}

// Stepping is a deterministic clock for tests and scenarios.
//
// The first call to Now returns the start instant; every later call returns
// the previous value plus step.
//
// Thread-safety: all methods are safe for concurrent use.
type Stepping struct {
	mu    sync.Mutex
	start time.Time
	next  time.Time
	step  time.Duration
}

// NewStepping creates a clock starting at start and advancing by step.
func NewStepping(start time.Time, step time.Duration) *Stepping {
	start = start.UTC()
	return &Stepping{start: start, next: start, step: step}
}

// Now returns the next instant.
func (c *Stepping) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *Stepping) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Set moves the clock so the next call to Now returns t.
func (c *Stepping) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = t.UTC()
}

// Reset rewinds the clock to its start instant.
func (c *Stepping) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
