package models

import (
	"time"
)

// RunStatus is the overall state of one execution run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus is the state of one step result inside a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Skip details recorded alongside StepStatusSkipped.
const (
	SkipReasonCondition         = "condition not met"
	SkipReasonBranchNotSelected = "branch not selected"
	SkipReasonAborted           = "aborted"
)

// StepResult captures the outcome of one step inside a run.
type StepResult struct {
	StepID     string         `json:"step_id"`
	StepName   string         `json:"step_name,omitempty"`
	ActionType ActionType     `json:"action_type"`
	Status     StepStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	Error      string         `json:"error,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// ExecutionRun is the audit record of one full workflow execution attempt.
// It is created when a trigger matches, mutated as steps execute, and
// append-only once terminal.
type ExecutionRun struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	Context     ExecutionContext `json:"context"`
	Status      RunStatus        `json:"status"`
	StepResults []*StepResult    `json:"step_results"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Succeeded reports whether the run reached a successful terminal state.
func (r *ExecutionRun) Succeeded() bool {
	return r.Status == RunStatusSucceeded
}

// Duration returns the wall-clock duration of the run.
func (r *ExecutionRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WorkflowStats is the counter summary maintained once per completed run.
type WorkflowStats struct {
	WorkflowID     string     `json:"workflow_id"`
	ExecutionCount int64      `json:"execution_count"`
	SuccessCount   int64      `json:"success_count"`
	FailureCount   int64      `json:"failure_count"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
}

// SuccessRate returns the share of successful runs, or 0 with no runs yet.
func (s *WorkflowStats) SuccessRate() float64 {
	if s.ExecutionCount == 0 {
		return 0
	}

	return float64(s.SuccessCount) / float64(s.ExecutionCount)
}
