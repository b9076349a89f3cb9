package store

import (
	"context"
	"fmt"

	"github.com/roach88/bumpcheck/internal/canonical"
	"github.com/roach88/bumpcheck/internal/harness"
)

// Recorder adapts a Store to harness.Recorder.
type Recorder struct {
	Store *Store
}

var _ harness.Recorder = Recorder{}

// RecordScenario writes r with expected and observed state as canonical
// JSON.
func (rc Recorder) RecordScenario(ctx context.Context, executionID string, r *harness.ScenarioResult) error {
	rec, err := NewScenarioRecord(executionID, r)
	if err != nil {
		return err
	}
	return rc.Store.WriteScenario(ctx, rec)
}

// NewScenarioRecord converts a harness result into a ledger row.
func NewScenarioRecord(executionID string, r *harness.ScenarioResult) (ScenarioRecord, error) {
	expected, err := canonical.MarshalString(r.Expected)
	if err != nil {
		return ScenarioRecord{}, fmt.Errorf("marshal expected state: %w", err)
	}

	var observed string
	if r.Observed != nil {
		if observed, err = canonical.MarshalString(r.Observed); err != nil {
			return ScenarioRecord{}, fmt.Errorf("marshal observed state: %w", err)
		}
	}

	rec := ScenarioRecord{
		ExecutionID: executionID,
		Suite:       r.Suite,
		Ordinal:     r.Ordinal,
		Message:     r.Message,
		State:       string(r.State),
		RunID:       r.RunID,
		Conclusion:  string(r.Conclusion),
		Expected:    expected,
		Observed:    observed,
		Error:       r.ErrorText(),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	if r.Err != nil {
		rec.Code = string(harness.CodeOf(r.Err))
	}
	return rec, nil
}

// StatusOf maps a finished report to an execution status.
func StatusOf(rep *harness.Report) string {
	if rep.OK() {
		return StatusPassed
	}
	return StatusFailed
}
