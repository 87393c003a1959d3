package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldflow/fieldflow/pkg/condition"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/registry"
)

// StepExecutor runs one workflow step: condition gate, action dispatch, and
// the retry loop. The step's conditions are evaluated once, before the first
// attempt — retries go straight back to the action.
type StepExecutor struct {
	registry  *registry.Registry
	evaluator *condition.Evaluator
	logger    *slog.Logger
}

// NewStepExecutor creates a StepExecutor dispatching into the given registry.
func NewStepExecutor(reg *registry.Registry, evaluator *condition.Evaluator, logger *slog.Logger) *StepExecutor {
	return &StepExecutor{
		registry:  reg,
		evaluator: evaluator,
		logger:    logger.With("module", "step_executor"),
	}
}

// Execute resolves one step to a terminal StepResult. Failures are captured
// into the result, never returned: the runner decides whether a failed
// result aborts the run.
func (e *StepExecutor) Execute(ctx context.Context, step *models.WorkflowStep, executionCtx models.ExecutionContext) *models.StepResult {
	logger := e.logger.With(
		"step_id", step.ID,
		"action_type", step.ActionType,
		"workflow_id", executionCtx.WorkflowID,
	)

	result := &models.StepResult{
		StepID:     step.ID,
		StepName:   step.Name,
		ActionType: step.ActionType,
		Status:     models.StepStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	shouldExecute, err := e.evaluator.EvaluateGroup(step.Conditions, executionCtx)
	if err != nil {
		logger.Error("Step conditions are misconfigured", "error", err)

		return e.finish(result, models.StepStatusFailed, err)
	}

	if !shouldExecute {
		logger.Debug("Step conditions not met, skipping")
		result.Detail = models.SkipReasonCondition

		return e.finish(result, models.StepStatusSkipped, nil)
	}

	action, err := e.registry.CreateAction(step.ActionType, step.ActionConfig)
	if err != nil {
		// Unsupported action type or config schema violation: fatal for the
		// step, no retries.
		logger.Error("Failed to create action", "error", err)

		return e.finish(result, models.StepStatusFailed, err)
	}

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		variables, actionErr := action.Execute(ctx, executionCtx, logger)
		if actionErr == nil {
			result.Variables = variables

			return e.finish(result, models.StepStatusSucceeded, nil)
		}

		wrapped := &models.ActionExecutionError{
			ActionType: step.ActionType,
			StepID:     step.ID,
			Err:        actionErr,
		}

		if attempt > step.RetryCount {
			logger.Warn("Step failed after exhausting retries",
				"attempts", attempt, "error", actionErr)

			return e.finish(result, models.StepStatusFailed, wrapped)
		}

		logger.Info("Step failed, retrying",
			"attempt", attempt, "retry_delay_seconds", step.RetryDelaySeconds, "error", actionErr)

		if err := e.backoff(ctx, step.RetryDelaySeconds); err != nil {
			// Cancelled mid-backoff: the in-flight attempt already finished,
			// only the next one is prevented.
			return e.finish(result, models.StepStatusFailed, err)
		}
	}
}

// backoff suspends until the retry delay elapses or the run is cancelled.
func (e *StepExecutor) backoff(ctx context.Context, delaySeconds int) error {
	if delaySeconds <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Duration(delaySeconds) * time.Second)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *StepExecutor) finish(result *models.StepResult, status models.StepStatus, err error) *models.StepResult {
	result.Status = status
	result.FinishedAt = time.Now().UTC()

	if err != nil {
		result.Error = err.Error()
	}

	return result
}
