package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fieldflow/fieldflow/pkg/condition"
	"github.com/fieldflow/fieldflow/pkg/eventbus"
	"github.com/fieldflow/fieldflow/pkg/events"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/google/uuid"
)

// selectorConfigKey is the action-config key carrying a branch gate's
// selection rule, a condition tree evaluated against the current context.
const selectorConfigKey = "selector"

// WorkflowRunner orchestrates the ordered step pipeline of one workflow for
// one triggering context into a terminal ExecutionRun. Consecutive parallel
// steps sharing a branch id fan out concurrently and the runner waits for
// the whole group before advancing; consecutive non-parallel branch steps
// are alternatives of which at most one branch executes.
type WorkflowRunner struct {
	executor  *StepExecutor
	evaluator *condition.Evaluator
	history   persistence.RunHistory
	counters  persistence.CounterStore
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewWorkflowRunner creates a runner. The publisher may be nil when run
// lifecycle events are not wanted, e.g. in tests.
func NewWorkflowRunner(
	executor *StepExecutor,
	evaluator *condition.Evaluator,
	history persistence.RunHistory,
	counters persistence.CounterStore,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *WorkflowRunner {
	return &WorkflowRunner{
		executor:  executor,
		evaluator: evaluator,
		history:   history,
		counters:  counters,
		publisher: publisher,
		logger:    logger.With("module", "workflow_runner"),
		sleep:     sleepFor,
	}
}

// Run executes the workflow's steps for the given context. Callers always
// receive an ExecutionRun, even for fully failed runs; only a broken
// aggregate (e.g. a branch gate selecting a nonexistent branch) returns an
// error instead.
func (r *WorkflowRunner) Run(ctx context.Context, workflow *models.Workflow, executionCtx models.ExecutionContext) (*models.ExecutionRun, error) {
	if executionCtx.ID == "" {
		executionCtx.ID = "exec-" + uuid.New().String()[:8]
	}

	executionCtx.WorkflowID = workflow.ID

	run := &models.ExecutionRun{
		ID:          "run-" + uuid.New().String(),
		WorkflowID:  workflow.ID,
		Context:     executionCtx,
		Status:      models.RunStatusRunning,
		StepResults: make([]*models.StepResult, 0, len(workflow.Steps)),
		StartedAt:   time.Now().UTC(),
	}

	logger := r.logger.With("workflow_id", workflow.ID, "run_id", run.ID)
	logger.Info("Starting workflow run", "trigger_type", executionCtx.TriggerType, "steps", len(workflow.Steps))

	r.publish(ctx, run.WorkflowID, events.RunStarted{
		BaseEvent:   r.baseEvent(events.RunStartedEvent, workflow.ID),
		RunID:       run.ID,
		TriggerType: executionCtx.TriggerType,
		RecordID:    executionCtx.RecordID,
		RecordType:  executionCtx.RecordType,
	})

	// Workflow-level delay applies once, before the first step.
	if err := r.delay(ctx, workflow.DelaySeconds); err != nil {
		return r.complete(ctx, run, workflow, err), nil
	}

	steps := sortedSteps(workflow.Steps)
	current := executionCtx

	var abortErr error

	for i := 0; i < len(steps); {
		if err := ctx.Err(); err != nil {
			// Cancellation prevents subsequent steps from starting; steps
			// already running were allowed to finish.
			r.markRemaining(run, steps[i:])

			abortErr = err

			break
		}

		step := steps[i]

		switch {
		case step.BranchID != nil && step.IsParallel:
			group := parallelGroup(steps, i)

			if err := r.runParallelGroup(ctx, run, group, &current); err != nil {
				r.markRemaining(run, steps[i+len(group):])

				abortErr = err
			}

			i += len(group)
		case step.BranchID != nil:
			segment := branchSegment(steps, i)

			selErr, execErr := r.runBranchSegment(ctx, run, segment, &current)
			if selErr != nil {
				// Broken branch configuration is an unrecoverable aggregate
				// error, propagated past the run.
				return nil, selErr
			}

			if execErr != nil {
				r.markRemaining(run, steps[i+len(segment):])

				abortErr = execErr
			}

			i += len(segment)
		default:
			result := r.runStep(ctx, run, step, &current)
			if result.Status == models.StepStatusFailed && !step.ContinueOnError {
				r.markRemaining(run, steps[i+1:])

				abortErr = fmt.Errorf("step %s failed: %s", step.ID, result.Error)
			}

			i++
		}

		if abortErr != nil {
			break
		}
	}

	return r.complete(ctx, run, workflow, abortErr), nil
}

// runStep executes one sequential step, appends its result, and merges any
// produced variables into the shared context.
func (r *WorkflowRunner) runStep(ctx context.Context, run *models.ExecutionRun, step *models.WorkflowStep, current *models.ExecutionContext) *models.StepResult {
	result := r.executor.Execute(ctx, step, *current)
	run.StepResults = append(run.StepResults, result)

	if result.Status == models.StepStatusSucceeded && len(result.Variables) > 0 {
		*current = current.WithVariables(result.Variables)
	}

	r.publish(ctx, run.WorkflowID, events.StepCompleted{
		BaseEvent: r.baseEvent(events.StepCompletedEvent, run.WorkflowID),
		RunID:     run.ID,
		StepID:    step.ID,
		Status:    result.Status,
		Attempts:  result.Attempts,
		Error:     result.Error,
	})

	return result
}

// runParallelGroup fans the group out on the pre-group context, waits for
// every member, then merges variable writes deterministically by ascending
// step order (later order wins on key collision). Returns an error when a
// member failed without continue-on-error.
func (r *WorkflowRunner) runParallelGroup(ctx context.Context, run *models.ExecutionRun, group []*models.WorkflowStep, current *models.ExecutionContext) error {
	base := *current
	results := make([]*models.StepResult, len(group))

	var wg sync.WaitGroup

	for i, step := range group {
		wg.Add(1)

		go func(i int, step *models.WorkflowStep) {
			defer wg.Done()

			// Members only see variables present before the group started.
			results[i] = r.executor.Execute(ctx, step, base)
		}(i, step)
	}

	wg.Wait()

	var groupErr error

	merged := base

	// group is already sorted by (order, id); merging in slice order makes
	// the later-order writer win on key collisions.
	for i, step := range group {
		result := results[i]
		run.StepResults = append(run.StepResults, result)

		r.publish(ctx, run.WorkflowID, events.StepCompleted{
			BaseEvent: r.baseEvent(events.StepCompletedEvent, run.WorkflowID),
			RunID:     run.ID,
			StepID:    step.ID,
			Status:    result.Status,
			Attempts:  result.Attempts,
			Error:     result.Error,
		})

		if result.Status == models.StepStatusSucceeded && len(result.Variables) > 0 {
			merged = merged.WithVariables(result.Variables)
		}

		if result.Status == models.StepStatusFailed && !step.ContinueOnError && groupErr == nil {
			groupErr = fmt.Errorf("step %s failed: %s", step.ID, result.Error)
		}
	}

	*current = merged

	return groupErr
}

// runBranchSegment selects at most one branch among the alternatives and
// executes its steps sequentially; every step of an unselected branch is
// recorded as skipped (branch not selected). The first return value reports
// a broken selector configuration; the second a run-aborting step failure.
func (r *WorkflowRunner) runBranchSegment(ctx context.Context, run *models.ExecutionRun, segment []*models.WorkflowStep, current *models.ExecutionContext) (error, error) {
	branches, order := groupByBranch(segment)

	selected := ""

	for _, branchID := range order {
		gate := branches[branchID][0]

		rule, err := models.UnmarshalConditionConfig(gate.ActionConfig[selectorConfigKey])
		if err != nil {
			return models.NewConfigurationError("selector", fmt.Sprintf("branch %s: %v", branchID, err)), nil
		}

		matched, err := r.evaluator.EvaluateGroup(rule, *current)
		if err != nil {
			return models.NewConfigurationError("selector", fmt.Sprintf("branch %s: %v", branchID, err)), nil
		}

		if matched {
			selected = branchID

			break
		}
	}

	var execErr error

	for _, branchID := range order {
		for _, step := range branches[branchID] {
			if branchID != selected || execErr != nil {
				reason := models.SkipReasonBranchNotSelected
				if execErr != nil && branchID == selected {
					reason = models.SkipReasonAborted
				}

				run.StepResults = append(run.StepResults, skippedResult(step, reason))

				continue
			}

			result := r.runStep(ctx, run, step, current)
			if result.Status == models.StepStatusFailed && !step.ContinueOnError {
				execErr = fmt.Errorf("step %s failed: %s", step.ID, result.Error)
			}
		}
	}

	return nil, execErr
}

// complete finalizes the run, updates the counters exactly once, records the
// run in history, and publishes the terminal event.
func (r *WorkflowRunner) complete(ctx context.Context, run *models.ExecutionRun, workflow *models.Workflow, abortErr error) *models.ExecutionRun {
	run.FinishedAt = time.Now().UTC()

	if abortErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = abortErr.Error()
	} else {
		run.Status = models.RunStatusSucceeded
	}

	logger := r.logger.With("workflow_id", workflow.ID, "run_id", run.ID)

	if r.counters != nil {
		if err := r.counters.IncrementRun(ctx, workflow.ID, run.Succeeded(), run.FinishedAt); err != nil {
			logger.Error("Failed to update workflow counters", "error", err)
		}
	}

	if r.history != nil {
		if err := r.history.Record(ctx, run); err != nil {
			logger.Error("Failed to record run", "error", err)
		}
	}

	if run.Succeeded() {
		logger.Info("Workflow run completed", "steps_executed", len(run.StepResults), "duration", run.Duration())

		r.publish(ctx, run.WorkflowID, events.RunCompleted{
			BaseEvent:     r.baseEvent(events.RunCompletedEvent, workflow.ID),
			RunID:         run.ID,
			Status:        run.Status,
			StepsExecuted: len(run.StepResults),
			Duration:      run.Duration(),
		})
	} else {
		logger.Warn("Workflow run failed", "error", run.Error, "duration", run.Duration())

		r.publish(ctx, run.WorkflowID, events.RunFailed{
			BaseEvent: r.baseEvent(events.RunFailedEvent, workflow.ID),
			RunID:     run.ID,
			Error:     run.Error,
			Duration:  run.Duration(),
		})
	}

	return run
}

func (r *WorkflowRunner) delay(ctx context.Context, delaySeconds int) error {
	if delaySeconds <= 0 {
		return ctx.Err()
	}

	return r.sleep(ctx, time.Duration(delaySeconds)*time.Second)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *WorkflowRunner) markRemaining(run *models.ExecutionRun, remaining []*models.WorkflowStep) {
	for _, step := range remaining {
		run.StepResults = append(run.StepResults, skippedResult(step, models.SkipReasonAborted))
	}
}

func (r *WorkflowRunner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	if err := r.publisher.Publish(ctx, key, event); err != nil {
		r.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (r *WorkflowRunner) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func skippedResult(step *models.WorkflowStep, reason string) *models.StepResult {
	now := time.Now().UTC()

	return &models.StepResult{
		StepID:     step.ID,
		StepName:   step.Name,
		ActionType: step.ActionType,
		Status:     models.StepStatusSkipped,
		Detail:     reason,
		StartedAt:  now,
		FinishedAt: now,
	}
}

// sortedSteps returns the steps ordered by (order, id) without mutating the
// workflow aggregate.
func sortedSteps(steps []*models.WorkflowStep) []*models.WorkflowStep {
	sorted := make([]*models.WorkflowStep, len(steps))
	copy(sorted, steps)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}

		return sorted[i].ID < sorted[j].ID
	})

	return sorted
}

// parallelGroup collects the maximal run of consecutive parallel steps
// sharing the branch id of steps[start].
func parallelGroup(steps []*models.WorkflowStep, start int) []*models.WorkflowStep {
	branchID := *steps[start].BranchID
	end := start

	for end < len(steps) && steps[end].IsParallel && steps[end].BranchID != nil && *steps[end].BranchID == branchID {
		end++
	}

	return steps[start:end]
}

// branchSegment collects the maximal run of consecutive non-parallel steps
// carrying any branch id: the alternative set at this pipeline position.
func branchSegment(steps []*models.WorkflowStep, start int) []*models.WorkflowStep {
	end := start

	for end < len(steps) && steps[end].BranchID != nil && !steps[end].IsParallel {
		end++
	}

	return steps[start:end]
}

// groupByBranch splits a branch segment into per-branch step lists,
// preserving first-appearance order of the branch ids.
func groupByBranch(segment []*models.WorkflowStep) (map[string][]*models.WorkflowStep, []string) {
	branches := make(map[string][]*models.WorkflowStep)
	order := make([]string, 0)

	for _, step := range segment {
		branchID := *step.BranchID

		if _, seen := branches[branchID]; !seen {
			order = append(order, branchID)
		}

		branches[branchID] = append(branches[branchID], step)
	}

	return branches, order
}
