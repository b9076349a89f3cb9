package store

import (
	"context"
	"fmt"
	"time"
)

// Execution statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// ScenarioRecord is one row of scenario_results.
type ScenarioRecord struct {
	ExecutionID string
	Suite       string
	Ordinal     int
	Message     string
	State       string
	RunID       int64
	Conclusion  string

	// Expected and Observed are canonical JSON. Observed is empty when
	// the repository state was never read back.
	Expected string
	Observed string

	Code       string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// BeginExecution inserts a running execution.
func (s *Store) BeginExecution(ctx context.Context, id, scope, fixture string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, scope, fixture, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, scope, fixture, formatTime(startedAt), StatusRunning)
	if err != nil {
		return fmt.Errorf("begin execution: %w", err)
	}
	return nil
}

// FinishExecution sets the final status of an execution.
func (s *Store) FinishExecution(ctx context.Context, id, status string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET status = ?, finished_at = ? WHERE id = ?
	`, status, formatTime(finishedAt), id)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish execution: unknown execution %q", id)
	}
	return nil
}

// WriteScenario inserts or replaces the result of one scenario.
// The execution must exist (foreign key constraint).
func (s *Store) WriteScenario(ctx context.Context, rec ScenarioRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenario_results
		(execution_id, suite, ordinal, message, state, run_id, conclusion, expected, observed, code, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, suite, ordinal) DO UPDATE SET
			message = excluded.message,
			state = excluded.state,
			run_id = excluded.run_id,
			conclusion = excluded.conclusion,
			expected = excluded.expected,
			observed = excluded.observed,
			code = excluded.code,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`,
		rec.ExecutionID,
		rec.Suite,
		rec.Ordinal,
		rec.Message,
		rec.State,
		rec.RunID,
		rec.Conclusion,
		rec.Expected,
		rec.Observed,
		rec.Code,
		rec.Error,
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("write scenario %s #%d: %w", rec.Suite, rec.Ordinal, err)
	}
	return nil
}

// Prune deletes every execution except the keep most recent ones, with
// their scenario results. It returns the number of executions deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune: keep must not be negative, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM executions WHERE id NOT IN (
			SELECT id FROM executions
			ORDER BY started_at DESC, id COLLATE BINARY ASC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}
