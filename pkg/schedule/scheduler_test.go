package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fieldflow/fieldflow/pkg/eventbus"
	"github.com/fieldflow/fieldflow/pkg/events"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workflowStore struct {
	workflows []*models.Workflow
}

func (s *workflowStore) Workflows(_ context.Context) ([]*models.Workflow, error) {
	return s.workflows, nil
}

func (s *workflowStore) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	for _, workflow := range s.workflows {
		if workflow.ID == id {
			return workflow, nil
		}
	}

	return nil, persistence.ErrWorkflowNotFound
}

func (s *workflowStore) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	s.workflows = append(s.workflows, workflow)

	return nil
}

func (s *workflowStore) DeleteWorkflow(_ context.Context, _ string) error { return nil }
func (s *workflowStore) RunHistory() persistence.RunHistory               { return nil }
func (s *workflowStore) Counters() persistence.CounterStore               { return nil }
func (s *workflowStore) HealthCheck(_ context.Context) error              { return nil }
func (s *workflowStore) Close(_ context.Context) error                    { return nil }

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) published() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scheduledWorkflow(id, cronExpression string) *models.Workflow {
	return &models.Workflow{
		ID:           id,
		Name:         id,
		TriggerType:  models.TriggerScheduled,
		ScheduleCron: cronExpression,
		Active:       true,
	}
}

func TestSchedulerFiresDueSchedules(t *testing.T) {
	store := &workflowStore{workflows: []*models.Workflow{
		scheduledWorkflow("wf-due", "* * * * *"),
	}}
	publisher := &capturingPublisher{}

	scheduler := NewScheduler(NewEvaluator(), store, publisher, time.Minute, testLogger())
	require.NoError(t, scheduler.Start(context.Background()))

	defer scheduler.Stop()

	// Jump past the precomputed fire time to make the schedule due.
	scheduler.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	scheduler.Tick(context.Background())

	published := publisher.published()
	require.Len(t, published, 1)

	fired, ok := published[0].(events.ScheduleFired)
	require.True(t, ok)
	assert.Equal(t, "wf-due", fired.WorkflowID)
	assert.Equal(t, "* * * * *", fired.CronExpression)
	assert.True(t, fired.NextDueAt.After(fired.FiredAt))
}

func TestSchedulerSkipsNotDueAndInactive(t *testing.T) {
	inactive := scheduledWorkflow("wf-inactive", "* * * * *")
	inactive.Active = false

	store := &workflowStore{workflows: []*models.Workflow{
		scheduledWorkflow("wf-later", "0 9 1 1 *"),
		inactive,
	}}
	publisher := &capturingPublisher{}

	scheduler := NewScheduler(NewEvaluator(), store, publisher, time.Minute, testLogger())
	require.NoError(t, scheduler.Start(context.Background()))

	defer scheduler.Stop()

	scheduler.Tick(context.Background())

	assert.Empty(t, publisher.published())
}

func TestSchedulerSkipsInvalidCron(t *testing.T) {
	store := &workflowStore{workflows: []*models.Workflow{
		scheduledWorkflow("wf-broken", "not a cron"),
		scheduledWorkflow("wf-ok", "* * * * *"),
	}}
	publisher := &capturingPublisher{}

	scheduler := NewScheduler(NewEvaluator(), store, publisher, time.Minute, testLogger())
	require.NoError(t, scheduler.Start(context.Background()))

	defer scheduler.Stop()

	scheduler.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	scheduler.Tick(context.Background())

	published := publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "wf-ok", published[0].(events.ScheduleFired).WorkflowID)
}

func TestSchedulerDoesNotRefireAfterAdvance(t *testing.T) {
	store := &workflowStore{workflows: []*models.Workflow{
		scheduledWorkflow("wf-due", "0 9 * * *"),
	}}
	publisher := &capturingPublisher{}

	scheduler := NewScheduler(NewEvaluator(), store, publisher, time.Minute, testLogger())
	require.NoError(t, scheduler.Start(context.Background()))

	defer scheduler.Stop()

	scheduler.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	scheduler.Tick(context.Background())
	scheduler.Tick(context.Background())

	// The schedule advanced past now after the first fire; the second tick
	// must not fire it again.
	assert.Len(t, publisher.published(), 1)
}
