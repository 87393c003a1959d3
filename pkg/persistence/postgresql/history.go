package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

// RunHistory stores execution runs with the context and step results as
// JSONB documents, while the gating queries run against indexed columns.
type RunHistory struct {
	db *sql.DB
}

func (h *RunHistory) Record(ctx context.Context, run *models.ExecutionRun) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return persistence.NewStoreError("encode run context", run.WorkflowID, err)
	}

	stepResults, err := json.Marshal(run.StepResults)
	if err != nil {
		return persistence.NewStoreError("encode step results", run.WorkflowID, err)
	}

	query := `
		INSERT INTO execution_runs (id, workflow_id, record_id, status, error, context, step_results, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = h.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.Context.RecordID,
		run.Status,
		run.Error,
		contextJSON,
		stepResults,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return persistence.NewStoreError("record run", run.WorkflowID, err)
	}

	return nil
}

func (h *RunHistory) HasSuccessfulRun(ctx context.Context, workflowID, recordID string) (bool, error) {
	var exists bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM execution_runs
			WHERE workflow_id = $1 AND record_id = $2 AND status = $3
		)
	`

	err := h.db.QueryRowContext(ctx, query, workflowID, recordID, models.RunStatusSucceeded).Scan(&exists)
	if err != nil {
		return false, persistence.NewStoreError("run-once lookup", workflowID, err)
	}

	return exists, nil
}

func (h *RunHistory) CountExecutionsToday(ctx context.Context, workflowID string, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var count int

	query := `
		SELECT COUNT(*) FROM execution_runs
		WHERE workflow_id = $1 AND started_at >= $2 AND started_at < $3
	`

	err := h.db.QueryRowContext(ctx, query, workflowID, dayStart, dayStart.AddDate(0, 0, 1)).Scan(&count)
	if err != nil {
		return 0, persistence.NewStoreError("daily count lookup", workflowID, err)
	}

	return count, nil
}

func (h *RunHistory) RunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, workflow_id, status, error, context, step_results, started_at, finished_at
		FROM execution_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := h.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, persistence.NewStoreError("run list lookup", workflowID, err)
	}
	defer rows.Close()

	runs := make([]*models.ExecutionRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (h *RunHistory) RunByID(ctx context.Context, runID string) (*models.ExecutionRun, error) {
	query := `
		SELECT id, workflow_id, status, error, context, step_results, started_at, finished_at
		FROM execution_runs
		WHERE id = $1
	`

	run, err := scanRun(h.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrRunNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("read run", "", err)
	}

	return run, nil
}

func scanRun(row rowScanner) (*models.ExecutionRun, error) {
	var (
		run         models.ExecutionRun
		errorText   sql.NullString
		contextJSON []byte
		stepResults []byte
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.Status,
		&errorText,
		&contextJSON,
		&stepResults,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Error = errorText.String

	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}

	if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
		return nil, fmt.Errorf("failed to decode run context: %w", err)
	}

	if err := json.Unmarshal(stepResults, &run.StepResults); err != nil {
		return nil, fmt.Errorf("failed to decode step results: %w", err)
	}

	return &run, nil
}

// CounterStore maintains per-workflow counters via atomic upserts.
type CounterStore struct {
	db *sql.DB
}

func (c *CounterStore) IncrementRun(ctx context.Context, workflowID string, succeeded bool, at time.Time) error {
	successIncrement := 0
	failureIncrement := 0

	if succeeded {
		successIncrement = 1
	} else {
		failureIncrement = 1
	}

	query := `
		INSERT INTO workflow_stats (workflow_id, execution_count, success_count, failure_count, last_run_at)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (workflow_id) DO UPDATE SET
			execution_count = workflow_stats.execution_count + 1,
			success_count = workflow_stats.success_count + EXCLUDED.success_count,
			failure_count = workflow_stats.failure_count + EXCLUDED.failure_count,
			last_run_at = EXCLUDED.last_run_at
	`

	_, err := c.db.ExecContext(ctx, query, workflowID, successIncrement, failureIncrement, at)
	if err != nil {
		return persistence.NewStoreError("increment counters", workflowID, err)
	}

	return nil
}

func (c *CounterStore) Stats(ctx context.Context, workflowID string) (*models.WorkflowStats, error) {
	stats := &models.WorkflowStats{WorkflowID: workflowID}

	var lastRunAt sql.NullTime

	query := `
		SELECT execution_count, success_count, failure_count, last_run_at
		FROM workflow_stats
		WHERE workflow_id = $1
	`

	err := c.db.QueryRowContext(ctx, query, workflowID).Scan(
		&stats.ExecutionCount,
		&stats.SuccessCount,
		&stats.FailureCount,
		&lastRunAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("stats lookup", workflowID, err)
	}

	if lastRunAt.Valid {
		runAt := lastRunAt.Time
		stats.LastRunAt = &runAt
	}

	return stats, nil
}
