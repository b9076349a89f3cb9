package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a manually advanced clock for tests.
//
// Sleep never blocks: it advances the clock by the requested duration,
// records the call, and then runs the OnSleep hook (if set). Tests use the
// hook to make external state change "while the harness waits".
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep runs after every Sleep with the updated time.
	OnSleep func(now time.Time)
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep advances the clock by d unless ctx is already done.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.now
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	return nil
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
