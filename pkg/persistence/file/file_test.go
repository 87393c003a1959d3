package file

import (
	"context"
	"testing"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p
}

func sampleWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "Deal won notification",
		Module:      "deals",
		TriggerType: models.TriggerRecordUpdated,
		Active:      true,
		Steps: []*models.WorkflowStep{
			{ID: id + "-s1", ActionType: models.ActionWebhook, Order: 1, ActionConfig: map[string]any{"url": "https://hooks.example.com"}},
		},
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.SaveWorkflow(ctx, sampleWorkflow("wf-1")))

	loaded, err := p.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Deal won notification", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, models.ActionWebhook, loaded.Steps[0].ActionType)

	workflows, err := p.Workflows(ctx)
	require.NoError(t, err)
	assert.Len(t, workflows, 1)

	require.NoError(t, p.DeleteWorkflow(ctx, "wf-1"))

	_, err = p.WorkflowByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestDeleteMissingWorkflow(t *testing.T) {
	p := newTestPersistence(t)

	err := p.DeleteWorkflow(context.Background(), "nope")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestRunHistoryGates(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	history := p.RunHistory()

	now := time.Now().UTC()

	run := &models.ExecutionRun{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Context:    models.ExecutionContext{RecordID: "rec-1"},
		Status:     models.RunStatusSucceeded,
		StartedAt:  now,
		FinishedAt: now,
	}
	require.NoError(t, history.Record(ctx, run))

	hasRun, err := history.HasSuccessfulRun(ctx, "wf-1", "rec-1")
	require.NoError(t, err)
	assert.True(t, hasRun)

	hasRun, err = history.HasSuccessfulRun(ctx, "wf-1", "rec-other")
	require.NoError(t, err)
	assert.False(t, hasRun)

	count, err := history.CountExecutionsToday(ctx, "wf-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err := history.RunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)

	_, err = history.RunByID(ctx, "run-404")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestFailedRunDoesNotSatisfyRunOnce(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	history := p.RunHistory()

	run := &models.ExecutionRun{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Context:    models.ExecutionContext{RecordID: "rec-1"},
		Status:     models.RunStatusFailed,
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, history.Record(ctx, run))

	hasRun, err := history.HasSuccessfulRun(ctx, "wf-1", "rec-1")
	require.NoError(t, err)
	assert.False(t, hasRun)
}

func TestCounterStore(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	counters := p.Counters()

	now := time.Now().UTC()

	require.NoError(t, counters.IncrementRun(ctx, "wf-1", true, now))
	require.NoError(t, counters.IncrementRun(ctx, "wf-1", false, now))

	stats, err := counters.Stats(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ExecutionCount)
	assert.Equal(t, int64(1), stats.SuccessCount)
	assert.Equal(t, int64(1), stats.FailureCount)
	require.NotNil(t, stats.LastRunAt)

	empty, err := counters.Stats(ctx, "wf-untouched")
	require.NoError(t, err)
	assert.Zero(t, empty.ExecutionCount)
}

func TestRunsByWorkflowNewestFirst(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()
	history := p.RunHistory()

	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		run := &models.ExecutionRun{
			ID:         "run-" + string(rune('a'+i)),
			WorkflowID: "wf-1",
			Status:     models.RunStatusSucceeded,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, history.Record(ctx, run))
	}

	runs, err := history.RunsByWorkflow(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
}
