package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule tracks the precomputed next fire time for a cron-scheduled
// workflow, so the scheduler can poll for due entries without keeping an
// individual timer per workflow.
type Schedule struct {
	WorkflowID     string    `json:"workflow_id" validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Active         bool      `json:"active"`
}

// NewSchedule creates a Schedule with the first fire time computed from now.
func NewSchedule(workflowID, cronExpression string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance recomputes the next fire time from the given reference time.
func (s *Schedule) Advance(after time.Time) error {
	return s.calculateNextDueAt(after)
}

func (s *Schedule) calculateNextDueAt(referenceTime time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return NewConfigurationError("cron", err.Error())
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}
