// Package runs observes CI workflow runs.
//
// The harness never drives the CI provider; it only lists recent runs,
// reads one run by id, and clears history for a scope before a fresh
// execution. Provider errors are wrapped in TransportError and returned as
// is. Retrying is the caller's business.
package runs

import (
	"context"
	"fmt"
	"time"
)

// Status is the provider's lifecycle state for a run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusPending    Status = "pending"
	StatusWaiting    Status = "waiting"
	StatusRequested  Status = "requested"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Terminal reports whether the provider will not transition the run further.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Conclusion is the outcome of a completed run.
type Conclusion string

const (
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionStale          Conclusion = "stale"
)

// Run is a CI execution record owned by the provider.
type Run struct {
	ID         int64      `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Status     Status     `json:"status"`
	Conclusion Conclusion `json:"conclusion,omitempty"`
	Branch     string     `json:"branch,omitempty"`
	URL        string     `json:"url,omitempty"`
}

// Completed reports whether the run reached its terminal state.
func (r *Run) Completed() bool {
	return r != nil && r.Status.Terminal()
}

// Succeeded reports whether the run completed successfully.
func (r *Run) Succeeded() bool {
	return r.Completed() && r.Conclusion == ConclusionSuccess
}

// Client is the read (and purge) surface of a CI provider.
type Client interface {
	// MostRecentRun returns the newest run for scope, or (nil, nil) if the
	// scope has no runs yet. An empty scope means all branches.
	MostRecentRun(ctx context.Context, scope string) (*Run, error)

	// GetRun returns the current state of run id.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ClearRuns deletes every run recorded for scope.
	ClearRuns(ctx context.Context, scope string) error
}

// TransportError wraps a failed provider call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("runs: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
