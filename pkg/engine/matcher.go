// Package engine implements the workflow execution core: trigger matching,
// step execution, run orchestration, and multi-workflow dispatch.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/fieldflow/fieldflow/pkg/condition"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

// TriggerMatcher decides whether a workflow should fire for a record event.
// Ordinary non-matches (wrong trigger type, rate limit reached, run-once
// already satisfied) return false without error; only configuration errors
// in the workflow's condition tree surface as a fault.
type TriggerMatcher struct {
	evaluator *condition.Evaluator
	history   persistence.RunHistory
	logger    *slog.Logger
	now       func() time.Time
}

// NewTriggerMatcher creates a TriggerMatcher backed by the given run history.
func NewTriggerMatcher(evaluator *condition.Evaluator, history persistence.RunHistory, logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		evaluator: evaluator,
		history:   history,
		logger:    logger.With("module", "trigger_matcher"),
		now:       time.Now,
	}
}

// Matches runs the full gate chain: trigger family, timing, watched fields,
// conditions, run-once history, and the daily execution cap.
func (m *TriggerMatcher) Matches(ctx context.Context, workflow *models.Workflow, executionCtx models.ExecutionContext) (bool, error) {
	if !m.matchesTriggerType(workflow, executionCtx) {
		return false, nil
	}

	if !m.matchesTiming(workflow, executionCtx) {
		return false, nil
	}

	if !m.matchesWatchedFields(workflow, executionCtx) {
		return false, nil
	}

	matched, err := m.evaluator.EvaluateGroup(workflow.Conditions, executionCtx)
	if err != nil {
		m.logger.Error("Workflow conditions are misconfigured",
			"workflow_id", workflow.ID, "error", err)

		return false, err
	}

	if !matched {
		return false, nil
	}

	if workflow.RunOncePerRecord && executionCtx.RecordID != "" {
		hasRun, err := m.history.HasSuccessfulRun(ctx, workflow.ID, executionCtx.RecordID)
		if err != nil {
			return false, err
		}

		if hasRun {
			return false, nil
		}
	}

	if workflow.MaxExecutionsPerDay != nil {
		count, err := m.history.CountExecutionsToday(ctx, workflow.ID, m.now())
		if err != nil {
			return false, err
		}

		// Cap reached: a normal non-match, not an error.
		if count >= *workflow.MaxExecutionsPerDay {
			m.logger.Debug("Daily execution cap reached",
				"workflow_id", workflow.ID, "cap", *workflow.MaxExecutionsPerDay)

			return false, nil
		}
	}

	return true, nil
}

func (m *TriggerMatcher) matchesTriggerType(workflow *models.Workflow, executionCtx models.ExecutionContext) bool {
	switch workflow.TriggerType {
	case models.TriggerManual:
		return executionCtx.TriggerType == models.TriggerManual && workflow.AllowManualTrigger
	case models.TriggerScheduled:
		return executionCtx.TriggerType == models.TriggerScheduled
	case models.TriggerRecordCreated, models.TriggerRecordUpdated, models.TriggerFieldChanged:
		// Record-event family: the context must describe a record event.
		return executionCtx.TriggerType == models.TriggerRecordCreated ||
			executionCtx.TriggerType == models.TriggerRecordUpdated
	default:
		return false
	}
}

func (m *TriggerMatcher) matchesTiming(workflow *models.Workflow, executionCtx models.ExecutionContext) bool {
	switch workflow.TriggerType {
	case models.TriggerManual, models.TriggerScheduled:
		return true
	default:
	}

	// timing=all bridges create and update for a single record-event trigger.
	if workflow.TriggerTiming == models.TimingAll {
		return true
	}

	switch workflow.TriggerTiming {
	case models.TimingOnCreate:
		return executionCtx.IsCreate()
	case models.TimingOnUpdate:
		return executionCtx.IsUpdate()
	default:
	}

	// No explicit timing: the trigger type itself names the operation kind.
	switch workflow.TriggerType {
	case models.TriggerRecordCreated:
		return executionCtx.IsCreate()
	case models.TriggerRecordUpdated, models.TriggerFieldChanged:
		return executionCtx.IsUpdate()
	default:
		return true
	}
}

func (m *TriggerMatcher) matchesWatchedFields(workflow *models.Workflow, executionCtx models.ExecutionContext) bool {
	if len(workflow.WatchedFields) == 0 || !executionCtx.IsUpdate() {
		return true
	}

	changed := executionCtx.ChangedFields()

	for _, field := range workflow.WatchedFields {
		if slices.Contains(changed, field) {
			return true
		}
	}

	return false
}
