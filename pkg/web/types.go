// Package web provides the REST API for workflow management and run
// inspection.
package web

import "github.com/fieldflow/fieldflow/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name          string                 `json:"name"         validate:"required,max=255"`
	Module        string                 `json:"module"       validate:"required"`
	TriggerType   models.TriggerType     `json:"trigger_type" validate:"required,oneof=record_created record_updated field_changed manual scheduled"`
	TriggerConfig map[string]any         `json:"trigger_config,omitempty"`
	TriggerTiming models.TriggerTiming   `json:"trigger_timing,omitempty" validate:"omitempty,oneof=on_create on_update all"`
	WatchedFields []string               `json:"watched_fields,omitempty"`
	Conditions    *models.ConditionGroup `json:"conditions,omitempty"`

	Priority            int  `json:"priority"`
	StopOnFirstMatch    bool `json:"stop_on_first_match"`
	MaxExecutionsPerDay *int `json:"max_executions_per_day,omitempty" validate:"omitempty,min=1"`
	RunOncePerRecord    bool `json:"run_once_per_record"`
	AllowManualTrigger  bool `json:"allow_manual_trigger"`
	DelaySeconds        int  `json:"delay_seconds" validate:"min=0"`

	ScheduleCron string `json:"schedule_cron,omitempty"`
	Active       bool   `json:"active"`

	Steps []*models.WorkflowStep `json:"steps"`
}

// UpdateWorkflowRequest is the request body for updating a workflow. All
// fields are optional; omitted fields keep their current values.
type UpdateWorkflowRequest struct {
	Name          *string                `json:"name,omitempty" validate:"omitempty,max=255"`
	TriggerConfig map[string]any         `json:"trigger_config,omitempty"`
	TriggerTiming *models.TriggerTiming  `json:"trigger_timing,omitempty" validate:"omitempty,oneof=on_create on_update all"`
	WatchedFields []string               `json:"watched_fields,omitempty"`
	Conditions    *models.ConditionGroup `json:"conditions,omitempty"`

	Priority            *int  `json:"priority,omitempty"`
	StopOnFirstMatch    *bool `json:"stop_on_first_match,omitempty"`
	MaxExecutionsPerDay *int  `json:"max_executions_per_day,omitempty" validate:"omitempty,min=1"`
	RunOncePerRecord    *bool `json:"run_once_per_record,omitempty"`
	AllowManualTrigger  *bool `json:"allow_manual_trigger,omitempty"`
	DelaySeconds        *int  `json:"delay_seconds,omitempty" validate:"omitempty,min=0"`

	ScheduleCron *string `json:"schedule_cron,omitempty"`
	Active       *bool   `json:"active,omitempty"`

	Steps []*models.WorkflowStep `json:"steps,omitempty"`
}

// WorkflowStatsResponse decorates the stored counters with fields derived at
// read time: the success rate and, for scheduled workflows, the next fire
// time.
type WorkflowStatsResponse struct {
	*models.WorkflowStats
	SuccessRate float64 `json:"success_rate"`
}

// ManualTriggerRequest is the request body for triggering a workflow by hand
// against one record.
type ManualTriggerRequest struct {
	RecordID   string         `json:"record_id"   validate:"required"`
	RecordType string         `json:"record_type" validate:"required"`
	RecordData map[string]any `json:"record_data"`
	UserID     string         `json:"user_id"     validate:"required"`
}
