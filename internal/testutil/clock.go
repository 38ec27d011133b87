package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new DeterministicClock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading, so timestamps are reproducible across runs.
//
// The first call to Now() returns Epoch; each later call returns the
// previous value plus the step. Frozen clocks (step 0) are allowed and
// useful for exercising timestamp collisions.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	step time.Duration
	next time.Time
}

// NewDeterministicClock creates a clock starting at Epoch that advances
// one second per reading.
func NewDeterministicClock() *DeterministicClock {
	return NewSteppingClock(Epoch, time.Second)
}

// NewSteppingClock creates a clock starting at start that advances by step
// per reading.
func NewSteppingClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{step: step, next: start.UTC()}
}

// NewFrozenClock creates a clock that always returns t.
func NewFrozenClock(t time.Time) *DeterministicClock {
	return NewSteppingClock(t, 0)
}

// Now returns the current reading and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Peek returns the value the next call to Now will return.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Set moves the clock to t. Moving it backwards is allowed.
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = t.UTC()
}
