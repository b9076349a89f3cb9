// Package poll implements fixed-interval polling with an explicit attempt
// guard.
//
// A poll resolves when the fetched value satisfies the caller's condition.
// It never retries a failed fetch: the first error ends the poll and is
// returned wrapped in an AttemptError. Only "condition not yet met" causes
// another attempt.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bumpcheck/internal/clock"
)

// DefaultInterval is the delay between attempts when a Policy leaves
// Interval unset.
const DefaultInterval = time.Second

// ErrExhausted is returned when MaxAttempts attempts were made and none
// satisfied the condition.
var ErrExhausted = errors.New("poll: attempts exhausted before condition was met")

// Policy controls attempt pacing.
type Policy struct {
	// Interval is the fixed delay between attempts. There is no backoff.
	Interval time.Duration

	// MaxAttempts bounds the number of fetches. Zero means unbounded; the
	// caller's context deadline is then the only guard.
	MaxAttempts int
}

func (p Policy) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

// Result is a resolved poll.
type Result[T any] struct {
	Value    T
	Attempts int
}

// AttemptError wraps a fetch failure with the attempt number it occurred on.
type AttemptError struct {
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("poll attempt %d: %v", e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Until calls fetch until done reports true for its value.
//
// Between attempts it sleeps Policy.Interval on clk. It returns:
//   - the value and attempt count when done is satisfied
//   - *AttemptError on the first fetch error
//   - ErrExhausted when MaxAttempts is reached
//   - ctx.Err() when the context ends while waiting
func Until[T any](ctx context.Context, clk clock.Clock, p Policy, fetch func(context.Context) (T, error), done func(T) bool) (Result[T], error) {
	var zero Result[T]

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fetch(ctx)
		if err != nil {
			return zero, &AttemptError{Attempt: attempt, Err: err}
		}
		if done(v) {
			return Result[T]{Value: v, Attempts: attempt}, nil
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return zero, ErrExhausted
		}
		if err := clk.Sleep(ctx, p.interval()); err != nil {
			return zero, err
		}
	}
}
