package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRunner_SequentialVariablePropagation(t *testing.T) {
	var secondSawScore any

	first := &scriptedFactory{
		id: "score",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return map[string]any{"score": 42}, nil
		},
	}
	second := &scriptedFactory{
		id: "consume",
		fn: func(_ context.Context, ectx models.ExecutionContext) (map[string]any, error) {
			secondSawScore = ectx.Variables["score"]

			return nil, nil
		},
	}

	history := &stubHistory{}
	counters := &stubCounters{}
	runner := newTestRunner(newTestRegistry(first, second), history, counters)

	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{ID: "s2", ActionType: models.ActionType("consume"), Order: 2},
			{ID: "s1", ActionType: models.ActionType("score"), Order: 1},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{}, map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	require.Len(t, run.StepResults, 2)

	// Steps execute by order, not declaration order.
	assert.Equal(t, "s1", run.StepResults[0].StepID)
	assert.Equal(t, "s2", run.StepResults[1].StepID)
	assert.Equal(t, 42, secondSawScore)

	// The triggering context itself is never mutated.
	assert.Empty(t, run.Context.Variables)
}

func TestWorkflowRunner_DelayAppliesOnceBeforeFirstStep(t *testing.T) {
	var executed []string

	ok := &scriptedFactory{
		id: "ok",
		fn: func(_ context.Context, ectx models.ExecutionContext) (map[string]any, error) {
			executed = append(executed, ectx.ID)

			return nil, nil
		},
	}

	history := &stubHistory{}
	counters := &stubCounters{}
	runner := newTestRunner(newTestRegistry(ok), history, counters)

	var slept []time.Duration

	runner.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)

		return nil
	}

	workflow := &models.Workflow{
		ID:           "wf-1",
		TriggerType:  models.TriggerRecordUpdated,
		Active:       true,
		DelaySeconds: 30,
		Steps: []*models.WorkflowStep{
			{ID: "s1", ActionType: models.ActionType("ok"), Order: 1},
			{ID: "s2", ActionType: models.ActionType("ok"), Order: 2},
			{ID: "s3", ActionType: models.ActionType("ok"), Order: 3},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{}, map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Len(t, executed, 3)

	// One wait for the whole run, not one per step.
	require.Len(t, slept, 1)
	assert.Equal(t, 30*time.Second, slept[0])
}

func TestWorkflowRunner_DelayCancelledBeforeFirstStep(t *testing.T) {
	ok := &scriptedFactory{
		id: "ok",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		},
	}

	history := &stubHistory{}
	counters := &stubCounters{}
	runner := newTestRunner(newTestRegistry(ok), history, counters)

	runner.sleep = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	workflow := &models.Workflow{
		ID:           "wf-1",
		TriggerType:  models.TriggerRecordUpdated,
		Active:       true,
		DelaySeconds: 30,
		Steps: []*models.WorkflowStep{
			{ID: "s1", ActionType: models.ActionType("ok"), Order: 1},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{}, map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Empty(t, run.StepResults)
}

func TestWorkflowRunner_AbortMarksRemainingSkipped(t *testing.T) {
	ok := &scriptedFactory{
		id: "ok",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		},
	}
	failing := &scriptedFactory{
		id: "fail",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, errors.New("handler blew up")
		},
	}

	history := &stubHistory{}
	counters := &stubCounters{}
	runner := newTestRunner(newTestRegistry(ok, failing), history, counters)

	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{ID: "s1", ActionType: models.ActionType("ok"), Order: 1},
			{ID: "s2", ActionType: models.ActionType("fail"), Order: 2},
			{ID: "s3", ActionType: models.ActionType("ok"), Order: 3},
			{ID: "s4", ActionType: models.ActionType("ok"), Order: 4},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{}, map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "s2")
	require.Len(t, run.StepResults, 4)

	assert.Equal(t, models.StepStatusSucceeded, run.StepResults[0].Status)
	assert.Equal(t, models.StepStatusFailed, run.StepResults[1].Status)

	for _, result := range run.StepResults[2:] {
		assert.Equal(t, models.StepStatusSkipped, result.Status)
		assert.Equal(t, models.SkipReasonAborted, result.Detail)
	}

	// Counters and history are updated exactly once, as a failure.
	assert.Equal(t, 1, counters.increments)
	assert.Equal(t, 1, counters.failed)
	assert.Len(t, history.runs, 1)
}

func TestWorkflowRunner_ContinueOnErrorKeepsRunSucceeded(t *testing.T) {
	ok := &scriptedFactory{
		id: "ok",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		},
	}
	failing := &scriptedFactory{
		id: "fail",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, errors.New("ignorable")
		},
	}

	counters := &stubCounters{}
	runner := newTestRunner(newTestRegistry(ok, failing), &stubHistory{}, counters)

	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{ID: "s1", ActionType: models.ActionType("fail"), Order: 1, ContinueOnError: true},
			{ID: "s2", ActionType: models.ActionType("ok"), Order: 2},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{}, map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	require.Len(t, run.StepResults, 2)
	assert.Equal(t, models.StepStatusFailed, run.StepResults[0].Status)
	assert.Equal(t, models.StepStatusSucceeded, run.StepResults[1].Status)
	assert.Equal(t, 1, counters.succeeded)
}

func TestWorkflowRunner_ParallelGroupMerge(t *testing.T) {
	var mu sync.Mutex

	seen := make([]map[string]any, 0, 2)

	writer := func(value string) *scriptedFactory {
		return &scriptedFactory{
			id: "write_" + value,
			fn: func(_ context.Context, ectx models.ExecutionContext) (map[string]any, error) {
				mu.Lock()
				seen = append(seen, ectx.Variables)
				mu.Unlock()

				return map[string]any{"x": value}, nil
			},
		}
	}

	reader := &scriptedFactory{
		id: "read",
		fn: func(_ context.Context, ectx models.ExecutionContext) (map[string]any, error) {
			mu.Lock()
			seen = append(seen, ectx.Variables)
			mu.Unlock()

			return nil, nil
		},
	}

	runner := newTestRunner(newTestRegistry(writer("a"), writer("b"), reader), &stubHistory{}, &stubCounters{})

	branch := strPtr("fanout")
	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{ID: "p1", ActionType: models.ActionType("write_a"), Order: 3, BranchID: branch, IsParallel: true},
			{ID: "p2", ActionType: models.ActionType("write_b"), Order: 4, BranchID: branch, IsParallel: true},
			{ID: "after", ActionType: models.ActionType("read"), Order: 5},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{}, map[string]any{}))
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, run.Status)
	require.Len(t, seen, 3)

	// Group members run on the pre-group context: neither sees the other's
	// write.
	assert.Empty(t, seen[0])
	assert.Empty(t, seen[1])

	// On collision the higher-order step's write wins deterministically.
	assert.Equal(t, "b", seen[2]["x"])
}

func TestWorkflowRunner_BranchSelection(t *testing.T) {
	executed := make(map[string]bool)

	recordingFactory := func(id string) *scriptedFactory {
		return &scriptedFactory{
			id: id,
			fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
				executed[id] = true

				return nil, nil
			},
		}
	}

	runner := newTestRunner(
		newTestRegistry(recordingFactory("won_path"), recordingFactory("lost_path"), recordingFactory("tail")),
		&stubHistory{}, &stubCounters{},
	)

	wonSelector := map[string]any{
		"combinator": "and",
		"children": []any{
			map[string]any{"field": "status", "operator": "equals", "value": "won"},
		},
	}
	lostSelector := map[string]any{
		"combinator": "and",
		"children": []any{
			map[string]any{"field": "status", "operator": "equals", "value": "lost"},
		},
	}

	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{
				ID: "b1s1", ActionType: models.ActionType("won_path"), Order: 1,
				BranchID:     strPtr("won"),
				ActionConfig: map[string]any{"selector": wonSelector},
			},
			{
				ID: "b2s1", ActionType: models.ActionType("lost_path"), Order: 2,
				BranchID:     strPtr("lost"),
				ActionConfig: map[string]any{"selector": lostSelector},
			},
			{ID: "tail", ActionType: models.ActionType("tail"), Order: 3},
		},
	}

	ectx := updateContext(map[string]any{"status": "lost"}, map[string]any{"status": "open"})

	run, err := runner.Run(context.Background(), workflow, ectx)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, run.Status)

	assert.False(t, executed["won_path"])
	assert.True(t, executed["lost_path"])
	assert.True(t, executed["tail"])

	require.Len(t, run.StepResults, 3)

	byID := make(map[string]*models.StepResult)
	for _, result := range run.StepResults {
		byID[result.StepID] = result
	}

	assert.Equal(t, models.StepStatusSkipped, byID["b1s1"].Status)
	assert.Equal(t, models.SkipReasonBranchNotSelected, byID["b1s1"].Detail)
	assert.Equal(t, models.StepStatusSucceeded, byID["b2s1"].Status)
	assert.Equal(t, models.StepStatusSucceeded, byID["tail"].Status)
}

func TestWorkflowRunner_BranchWithoutSelectorIsDefault(t *testing.T) {
	executed := ""

	track := func(id string) *scriptedFactory {
		return &scriptedFactory{
			id: id,
			fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
				executed = id

				return nil, nil
			},
		}
	}

	runner := newTestRunner(newTestRegistry(track("primary"), track("fallback")), &stubHistory{}, &stubCounters{})

	neverSelector := map[string]any{
		"combinator": "and",
		"children": []any{
			map[string]any{"field": "status", "operator": "equals", "value": "never"},
		},
	}

	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{
				ID: "b1", ActionType: models.ActionType("primary"), Order: 1,
				BranchID:     strPtr("a"),
				ActionConfig: map[string]any{"selector": neverSelector},
			},
			// No selector: matches unconditionally, the else branch.
			{ID: "b2", ActionType: models.ActionType("fallback"), Order: 2, BranchID: strPtr("b")},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{"status": "open"}, map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Equal(t, "fallback", executed)
}

func TestWorkflowRunner_LeafShapedSelectorIsConfigurationError(t *testing.T) {
	ok := &scriptedFactory{
		id: "ok",
		fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		},
	}

	runner := newTestRunner(newTestRegistry(ok), &stubHistory{}, &stubCounters{})

	workflow := &models.Workflow{
		ID:          "wf-1",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{
				ID: "b1", ActionType: models.ActionType("ok"), Order: 1,
				BranchID: strPtr("a"),
				// A bare leaf where a group is required must not silently
				// become an always-true selector.
				ActionConfig: map[string]any{
					"selector": map[string]any{"field": "status", "operator": "equals", "value": "won"},
				},
			},
		},
	}

	run, err := runner.Run(context.Background(), workflow, updateContext(map[string]any{"status": "won"}, map[string]any{}))
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
	assert.Nil(t, run)
}
