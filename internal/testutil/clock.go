// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"slices"
	"sync"
	"time"
)

type (
	// FakeClock is a clock whose time only moves when Advance or Set is
	// called. It satisfies the Clock dependencies of the update coordinator
	// and, through its Now method, the clock options of the ledger and the
	// download manager.
	FakeClock struct {
		mu      sync.Mutex
		now     time.Time
		waiters []waiter
	}

	waiter struct {
		at time.Time
		ch chan time.Time
	}
)

// reference is the start time of clocks created without one.
var reference = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock returns a FakeClock set to start, or to a fixed reference
// time when start is zero.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = reference
	}
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since t.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives the fake time once the clock has
// moved d past the current time. Non-positive durations fire immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	w := waiter{at: c.now.Add(d), ch: ch}
	i, _ := slices.BinarySearchFunc(c.waiters, w, func(a, b waiter) int { return a.at.Compare(b.at) })
	c.waiters = slices.Insert(c.waiters, i, w)
	return ch
}

// Pending returns the number of After channels that have not fired yet.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Advance moves the clock forward by d and fires every After channel that
// is due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.fire()
}

// Set moves the clock to t and fires every After channel that is due.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	c.fire()
}

// fire must be called with mu held. Waiters are kept sorted by due time.
func (c *FakeClock) fire() {
	n := 0
	for n < len(c.waiters) && !c.now.Before(c.waiters[n].at) {
		c.waiters[n].ch <- c.now
		n++
	}
	c.waiters = slices.Delete(c.waiters, 0, n)
}
