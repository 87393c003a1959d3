package models

import (
	"time"
)

// TriggerType classifies the record event that can start a workflow run.
type TriggerType string

const (
	TriggerRecordCreated TriggerType = "record_created"
	TriggerRecordUpdated TriggerType = "record_updated"
	TriggerFieldChanged  TriggerType = "field_changed"
	TriggerManual        TriggerType = "manual"
	TriggerScheduled     TriggerType = "scheduled"
)

// TriggerTiming narrows a record-event trigger to creates, updates, or both.
type TriggerTiming string

const (
	TimingOnCreate TriggerTiming = "on_create"
	TimingOnUpdate TriggerTiming = "on_update"
	TimingAll      TriggerTiming = "all"
)

// Workflow is the automation aggregate: trigger configuration, gating
// conditions, and the ordered step pipeline executed on a match.
type Workflow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"           validate:"required,max=255"`
	Module        string         `json:"module"         validate:"required"`
	TriggerType   TriggerType    `json:"trigger_type"   validate:"required,oneof=record_created record_updated field_changed manual scheduled"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	TriggerTiming TriggerTiming  `json:"trigger_timing,omitempty" validate:"omitempty,oneof=on_create on_update all"`
	WatchedFields []string       `json:"watched_fields,omitempty"`
	Conditions    *ConditionGroup `json:"conditions,omitempty"`

	Priority            int  `json:"priority"`
	StopOnFirstMatch    bool `json:"stop_on_first_match"`
	MaxExecutionsPerDay *int `json:"max_executions_per_day,omitempty" validate:"omitempty,min=1"`
	RunOncePerRecord    bool `json:"run_once_per_record"`
	AllowManualTrigger  bool `json:"allow_manual_trigger"`
	DelaySeconds        int  `json:"delay_seconds" validate:"min=0"`

	ScheduleCron string `json:"schedule_cron,omitempty"`
	Active       bool   `json:"active"`

	Steps []*WorkflowStep `json:"steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the cross-field invariants the struct tags cannot express.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return NewValidationError("name", "must not be empty")
	}

	if len(w.Name) > 255 {
		return NewValidationError("name", "must be at most 255 characters")
	}

	if w.DelaySeconds < 0 {
		return NewValidationError("delay_seconds", "must not be negative")
	}

	if w.MaxExecutionsPerDay != nil && *w.MaxExecutionsPerDay < 1 {
		return NewValidationError("max_executions_per_day", "must be at least 1 when set")
	}

	if w.TriggerType == TriggerScheduled && w.ScheduleCron == "" {
		return NewValidationError("schedule_cron", "required for scheduled workflows")
	}

	for _, step := range w.Steps {
		if err := step.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// IsScheduled reports whether the workflow fires from the scheduler path.
func (w *Workflow) IsScheduled() bool {
	return w.TriggerType == TriggerScheduled
}
