package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Execution is one row of executions with scenario tallies.
type Execution struct {
	ID         string
	Scope      string
	Fixture    string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Passed     int
	Failed     int
	Skipped    int
}

// ListExecutions returns the most recent executions first. A limit of
// zero or less returns every execution.
func (s *Store) ListExecutions(ctx context.Context, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.scope, e.fixture, e.status, e.started_at, e.finished_at,
			COALESCE(SUM(CASE WHEN r.state = 'verified' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.state = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.state = 'skipped' THEN 1 ELSE 0 END), 0)
		FROM executions e
		LEFT JOIN scenario_results r ON r.execution_id = e.id
		GROUP BY e.id
		ORDER BY e.started_at DESC, e.id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	executions := []Execution{}
	for rows.Next() {
		var (
			e        Execution
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Scope, &e.Fixture, &e.Status, &started, &finished, &e.Passed, &e.Failed, &e.Skipped); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if e.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			e.FinishedAt = &t
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return executions, nil
}

// ScenarioResults returns the scenarios of an execution in fixture order.
//
// Returns an empty slice (not nil) if the execution has no results.
func (s *Store) ScenarioResults(ctx context.Context, executionID string) ([]ScenarioRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, suite, ordinal, message, state, run_id, conclusion,
			expected, observed, code, error, started_at, finished_at
		FROM scenario_results
		WHERE execution_id = ?
		ORDER BY rowid ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query scenario results: %w", err)
	}
	defer rows.Close()

	records := []ScenarioRecord{}
	for rows.Next() {
		var (
			r                 ScenarioRecord
			started, finished string
		)
		if err := rows.Scan(&r.ExecutionID, &r.Suite, &r.Ordinal, &r.Message, &r.State, &r.RunID, &r.Conclusion,
			&r.Expected, &r.Observed, &r.Code, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan scenario result: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario results: %w", err)
	}
	return records, nil
}
