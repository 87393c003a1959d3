package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/fieldflow/fieldflow/pkg/models"
)

// Dispatcher fans one triggering context out over the tenant's workflows:
// highest priority first, ties broken by workflow id, with stop-on-first-match
// workflows able to shadow everything behind them.
type Dispatcher struct {
	matcher *TriggerMatcher
	runner  *WorkflowRunner
	logger  *slog.Logger
}

func NewDispatcher(matcher *TriggerMatcher, runner *WorkflowRunner, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		matcher: matcher,
		runner:  runner,
		logger:  logger.With("module", "dispatcher"),
	}
}

// Dispatch evaluates every active workflow against the context in priority
// order and runs the ones whose trigger matches. Matching faults on a single
// workflow (broken condition configuration) are logged and skip only that
// workflow. Returns the runs produced, which may be empty.
func (d *Dispatcher) Dispatch(ctx context.Context, workflows []*models.Workflow, executionCtx models.ExecutionContext) ([]*models.ExecutionRun, error) {
	candidates := activeByPriority(workflows)

	logger := d.logger.With(
		"trigger_type", executionCtx.TriggerType,
		"record_type", executionCtx.RecordType,
		"record_id", executionCtx.RecordID,
	)
	logger.Debug("Dispatching trigger", "candidates", len(candidates))

	runs := make([]*models.ExecutionRun, 0)

	for _, workflow := range candidates {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		matched, err := d.matcher.Matches(ctx, workflow, executionCtx)
		if err != nil {
			logger.Error("Skipping workflow with broken trigger configuration", "workflow_id", workflow.ID, "error", err)

			continue
		}

		if !matched {
			continue
		}

		run, err := d.runner.Run(ctx, workflow, executionCtx)
		if err != nil {
			logger.Error("Workflow run aborted", "workflow_id", workflow.ID, "error", err)

			continue
		}

		runs = append(runs, run)

		if workflow.StopOnFirstMatch {
			logger.Debug("Stopping dispatch after first match", "workflow_id", workflow.ID)

			break
		}
	}

	return runs, nil
}

// activeByPriority filters out inactive workflows and orders the rest by
// descending priority, workflow id ascending on ties.
func activeByPriority(workflows []*models.Workflow) []*models.Workflow {
	candidates := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Active {
			candidates = append(candidates, workflow)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}

		return candidates[i].ID < candidates[j].ID
	})

	return candidates
}
