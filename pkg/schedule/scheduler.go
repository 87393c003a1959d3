package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldflow/fieldflow/pkg/eventbus"
	"github.com/fieldflow/fieldflow/pkg/events"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/google/uuid"
)

// Scheduler is the centralized cron orchestrator: one poller checks every
// scheduled workflow's precomputed next fire time, regardless of the
// individual cron expressions, and publishes a ScheduleFired event for each
// due one. Workers pick the events up and run the workflows.
type Scheduler struct {
	evaluator    *Evaluator
	persistence  persistence.Persistence
	publisher    eventbus.EventPublisher
	logger       *slog.Logger
	pollInterval time.Duration
	now          func() time.Time

	mu        sync.Mutex
	schedules map[string]*models.Schedule
	started   bool
	done      chan struct{}
}

// NewScheduler creates a scheduler polling at the given interval. An
// interval of zero falls back to one minute, the cron resolution.
func NewScheduler(
	evaluator *Evaluator,
	persist persistence.Persistence,
	publisher eventbus.EventPublisher,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}

	return &Scheduler{
		evaluator:    evaluator,
		persistence:  persist,
		publisher:    publisher,
		logger:       logger.With("module", "scheduler"),
		pollInterval: pollInterval,
		now:          func() time.Time { return time.Now().UTC() },
		schedules:    make(map[string]*models.Schedule),
	}
}

// Start launches the poll loop. Returns immediately; the loop runs until
// Stop is called or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := s.reloadLocked(ctx); err != nil {
		return err
	}

	s.done = make(chan struct{})
	s.started = true

	go s.poll(ctx)

	s.logger.Info("Scheduler started", "poll_interval", s.pollInterval, "schedules", len(s.schedules))

	return nil
}

// Stop terminates the poll loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	close(s.done)
	s.started = false

	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) poll(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass: refresh the schedule set from persistence,
// fire everything due, and advance the fired schedules. Exposed so the poll
// cadence can be driven externally in tests.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(ctx); err != nil {
		s.logger.Error("Failed to reload schedules", "error", err)

		return
	}

	now := s.now()

	for workflowID, schedule := range s.schedules {
		if !schedule.IsDue(now) {
			continue
		}

		logger := s.logger.With("workflow_id", workflowID, "cron_expression", schedule.CronExpression)
		logger.Info("Schedule due, firing", "due_at", schedule.NextDueAt)

		if err := schedule.Advance(now); err != nil {
			logger.Error("Failed to advance schedule", "error", err)

			continue
		}

		event := events.ScheduleFired{
			BaseEvent: events.BaseEvent{
				ID:         uuid.New().String(),
				Type:       events.ScheduleFiredEvent,
				Timestamp:  now,
				WorkflowID: workflowID,
			},
			CronExpression: schedule.CronExpression,
			FiredAt:        now,
			NextDueAt:      schedule.NextDueAt,
		}

		if err := s.publisher.Publish(ctx, workflowID, event); err != nil {
			logger.Error("Failed to publish schedule event", "error", err)
		}
	}
}

// reloadLocked rebuilds the schedule set from the active scheduled workflows,
// preserving the precomputed fire time of schedules already being tracked so
// a reload never re-fires or postpones them.
func (s *Scheduler) reloadLocked(ctx context.Context) error {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*models.Schedule, len(s.schedules))

	for _, workflow := range workflows {
		if !workflow.Active || workflow.TriggerType != models.TriggerScheduled {
			continue
		}

		existing, ok := s.schedules[workflow.ID]
		if ok && existing.CronExpression == workflow.ScheduleCron {
			next[workflow.ID] = existing

			continue
		}

		schedule, err := models.NewSchedule(workflow.ID, workflow.ScheduleCron)
		if err != nil {
			s.logger.Error("Skipping workflow with invalid cron expression",
				"workflow_id", workflow.ID, "cron_expression", workflow.ScheduleCron, "error", err)

			continue
		}

		next[workflow.ID] = schedule
	}

	s.schedules = next

	return nil
}
