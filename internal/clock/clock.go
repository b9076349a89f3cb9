// Package clock abstracts wall time so that polling loops can be driven
// deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock is the time source used by the poller and the suite executor.
//
// Sleep blocks for d or until ctx is done, whichever comes first, and
// returns ctx.Err() in the latter case.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
//
// Thread-safety: Real is stateless and safe for concurrent use.
type Real struct{}

// New returns the wall clock.
func New() Real {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep waits for d, returning early if ctx is cancelled.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
