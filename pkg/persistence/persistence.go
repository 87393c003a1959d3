// Package persistence provides the storage abstraction for workflows, run
// history, and execution counters.
package persistence

import (
	"context"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
)

// RunHistory answers the run-gating questions the trigger matcher asks and
// retains completed runs for audit. Implementations must give consistent
// (not eventually-consistent) reads: run-once-per-record gating under
// concurrent triggers depends on it.
type RunHistory interface {
	// Record appends a terminal run. Runs are append-only.
	Record(ctx context.Context, run *models.ExecutionRun) error

	// HasSuccessfulRun reports whether the workflow already has a successful
	// run for the given record.
	HasSuccessfulRun(ctx context.Context, workflowID, recordID string) (bool, error)

	// CountExecutionsToday counts runs of the workflow on the day of now.
	CountExecutionsToday(ctx context.Context, workflowID string, now time.Time) (int, error)

	// RunsByWorkflow returns the retained runs for a workflow, newest first.
	RunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error)

	// RunByID returns one retained run.
	RunByID(ctx context.Context, runID string) (*models.ExecutionRun, error)
}

// CounterStore maintains per-workflow execution counters. Increment must be
// atomic: many runs of the same workflow may complete concurrently.
type CounterStore interface {
	// IncrementRun bumps the execution counter and exactly one of the
	// success/failure counters, and records the run time.
	IncrementRun(ctx context.Context, workflowID string, succeeded bool, at time.Time) error

	// Stats returns the counter summary for a workflow.
	Stats(ctx context.Context, workflowID string) (*models.WorkflowStats, error)
}

// Persistence is the full storage surface a deployment wires together.
type Persistence interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	RunHistory() RunHistory
	Counters() CounterStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
