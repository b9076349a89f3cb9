package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/bumpcheck/internal/runs"
)

// FakeRuns is an in-memory CI provider.
//
// Runs are started with Trigger. A triggered run becomes visible to
// MostRecentRun after AppearAfter further list calls and reports the
// statuses in Progress on successive GetRun calls before completing with
// its conclusion.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeRuns struct {
	mu    sync.Mutex
	clock interface{ Now() time.Time }
	runs  []*fakeRun
	next  int64

	// AppearAfter delays visibility of triggered runs, in list calls.
	AppearAfter int

	// Progress is the status sequence reported before completion.
	Progress []runs.Status

	// ListErr and GetErr, when set, are returned by the matching call.
	ListErr error
	GetErr  error

	cleared   []string
	listCalls int
	getCalls  int
}

type fakeRun struct {
	run        runs.Run
	conclusion runs.Conclusion
	hidden     int
	polls      int
}

// NewFakeRuns creates a provider whose runs are timestamped from clock.
func NewFakeRuns(clock interface{ Now() time.Time }) *FakeRuns {
	return &FakeRuns{
		clock:    clock,
		next:     100,
		Progress: []runs.Status{runs.StatusQueued, runs.StatusInProgress},
	}
}

// Seed adds an already existing run.
func (f *FakeRuns) Seed(r runs.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, &fakeRun{run: r, conclusion: r.Conclusion, polls: len(f.Progress)})
}

// Trigger starts a run on branch that will conclude with conclusion. The
// run is created one millisecond after the current clock time.
func (f *FakeRuns) Trigger(branch string, conclusion runs.Conclusion) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.runs = append(f.runs, &fakeRun{
		run: runs.Run{
			ID:        f.next,
			CreatedAt: f.clock.Now().Add(time.Millisecond),
			Status:    runs.StatusQueued,
			Branch:    branch,
		},
		conclusion: conclusion,
		hidden:     f.AppearAfter,
	})
	return f.next
}

// MostRecentRun implements runs.Client.
func (f *FakeRuns) MostRecentRun(ctx context.Context, scope string) (*runs.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.ListErr != nil {
		return nil, &runs.TransportError{Op: "list runs", Err: f.ListErr}
	}

	var latest *runs.Run
	for _, fr := range f.runs {
		if scope != "" && fr.run.Branch != scope {
			continue
		}
		if fr.hidden > 0 {
			fr.hidden--
			continue
		}
		if latest == nil || fr.run.CreatedAt.After(latest.CreatedAt) {
			r := fr.run
			latest = &r
		}
	}
	return latest, nil
}

// GetRun implements runs.Client.
func (f *FakeRuns) GetRun(ctx context.Context, id int64) (*runs.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.GetErr != nil {
		return nil, &runs.TransportError{Op: fmt.Sprintf("get run %d", id), Err: f.GetErr}
	}

	for _, fr := range f.runs {
		if fr.run.ID != id {
			continue
		}
		if fr.polls < len(f.Progress) {
			fr.run.Status = f.Progress[fr.polls]
		} else {
			fr.run.Status = runs.StatusCompleted
			fr.run.Conclusion = fr.conclusion
		}
		fr.polls++
		r := fr.run
		return &r, nil
	}
	return nil, &runs.TransportError{Op: fmt.Sprintf("get run %d", id), Err: fmt.Errorf("not found")}
}

// ClearRuns implements runs.Client.
func (f *FakeRuns) ClearRuns(ctx context.Context, scope string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, scope)
	kept := f.runs[:0]
	for _, fr := range f.runs {
		if scope == "" || fr.run.Branch == scope {
			continue
		}
		kept = append(kept, fr)
	}
	f.runs = kept
	return nil
}

// Cleared returns the scopes passed to ClearRuns.
func (f *FakeRuns) Cleared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

// Calls returns the number of MostRecentRun and GetRun calls.
func (f *FakeRuns) Calls() (list, get int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.getCalls
}

// Len returns the number of stored runs.
func (f *FakeRuns) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}
