package harness

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/bumpcheck/internal/expect"
	"github.com/roach88/bumpcheck/internal/runs"
)

// State is a scenario's position in its lifecycle.
//
//	idle → committed → pushed → awaiting_run_start →
//	awaiting_run_completion → completed → verified | failed
//
// Any state may move to failed. Skipped is terminal for scenarios that
// never started because an earlier one in the suite failed.
type State string

const (
	StateIdle                  State = "idle"
	StateCommitted             State = "committed"
	StatePushed                State = "pushed"
	StateAwaitingRunStart      State = "awaiting_run_start"
	StateAwaitingRunCompletion State = "awaiting_run_completion"
	StateCompleted             State = "completed"
	StateVerified              State = "verified"
	StateFailed                State = "failed"
	StateSkipped               State = "skipped"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateFailed || s == StateSkipped
}

// Transition is one entry of a scenario trace.
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Suite   string `json:"suite"`
	Ordinal int    `json:"ordinal"`
	Message string `json:"message"`
	State   State  `json:"state"`

	// Mark is the high-water mark captured before the push.
	Mark time.Time `json:"mark"`

	RunID      int64           `json:"run_id,omitempty"`
	RunURL     string          `json:"run_url,omitempty"`
	Conclusion runs.Conclusion `json:"conclusion,omitempty"`

	// Expected has every default applied, including the message default
	// once the repository state was read back.
	Expected expect.Resolved  `json:"expected"`
	Observed *expect.Observed `json:"observed,omitempty"`

	Mismatches []expect.Mismatch `json:"mismatches,omitempty"`

	// Err is the classified failure, nil unless State is failed.
	Err error `json:"-"`

	Trace      []Transition `json:"trace"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Passed reports whether the scenario was verified.
func (r *ScenarioResult) Passed() bool {
	return r.State == StateVerified
}

// ErrorText returns the failure message, or "" when there is none.
func (r *ScenarioResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r *ScenarioResult) enter(s State, at time.Time) {
	r.State = s
	r.Trace = append(r.Trace, Transition{State: s, At: at})
}

// SuiteResult groups the scenarios of one suite in fixture order.
type SuiteResult struct {
	Name      string           `json:"name"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// Passed reports whether every scenario in the suite was verified.
func (s *SuiteResult) Passed() bool {
	for i := range s.Scenarios {
		if !s.Scenarios[i].Passed() {
			return false
		}
	}
	return true
}

// Report aggregates an execution.
type Report struct {
	ExecutionID string        `json:"execution_id"`
	Scope       string        `json:"scope"`
	Suites      []SuiteResult `json:"suites"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// OK reports whether every scenario passed.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Err joins the errors of every failed scenario.
func (r *Report) Err() error {
	var errs []error
	for i := range r.Suites {
		for j := range r.Suites[i].Scenarios {
			if err := r.Suites[i].Scenarios[j].Err; err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Report) tally() {
	r.Passed, r.Failed, r.Skipped = 0, 0, 0
	for i := range r.Suites {
		for j := range r.Suites[i].Scenarios {
			switch r.Suites[i].Scenarios[j].State {
			case StateVerified:
				r.Passed++
			case StateSkipped:
				r.Skipped++
			default:
				r.Failed++
			}
		}
	}
}

// Recorder persists results as they are produced.
type Recorder interface {
	RecordScenario(ctx context.Context, executionID string, r *ScenarioResult) error
}

// IDGenerator produces execution IDs.
type IDGenerator interface {
	Generate() string
}
