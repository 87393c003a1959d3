// Package events defines the typed events published over the bus: record
// events coming in from the CRM, and run lifecycle events going out.
package events

import (
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
)

type EventType string

// Kafka topics.
const RecordEventsTopic = "fieldflow.records" // record change / manual trigger events from the CRM
const RunEventsTopic = "fieldflow.runs"       // run lifecycle events emitted by the engine

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound record events.
	RecordCreatedEvent EventType = "record.created"
	RecordUpdatedEvent EventType = "record.updated"
	ManualTriggerEvent EventType = "record.manual_trigger"
	ScheduleFiredEvent EventType = "schedule.fired"

	// Run lifecycle events.
	RunStartedEvent    EventType = "run.started"
	RunCompletedEvent  EventType = "run.completed"
	RunFailedEvent     EventType = "run.failed"
	StepCompletedEvent EventType = "run.step.completed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RecordChanged describes a record create or update in the CRM. PreviousData
// is nil on the create path.
type RecordChanged struct {
	BaseEvent

	RecordID     string         `json:"record_id"`
	RecordType   string         `json:"record_type"`
	RecordData   map[string]any `json:"record_data"`
	PreviousData map[string]any `json:"previous_data,omitempty"`
	UserID       *string        `json:"user_id,omitempty"`
}

func (e RecordChanged) GetType() EventType {
	if e.PreviousData == nil {
		return RecordCreatedEvent
	}

	return RecordUpdatedEvent
}

// TriggerType maps the record event onto the engine's trigger taxonomy.
func (e RecordChanged) TriggerType() models.TriggerType {
	if e.PreviousData == nil {
		return models.TriggerRecordCreated
	}

	return models.TriggerRecordUpdated
}

// ManualTrigger fires one workflow for one record on behalf of a user.
type ManualTrigger struct {
	BaseEvent

	RecordID   string         `json:"record_id"`
	RecordType string         `json:"record_type"`
	RecordData map[string]any `json:"record_data"`
	UserID     string         `json:"user_id"`
}

func (e ManualTrigger) GetType() EventType {
	return ManualTriggerEvent
}

// ScheduleFired announces that a cron-scheduled workflow is due.
type ScheduleFired struct {
	BaseEvent

	CronExpression string    `json:"cron_expression"`
	FiredAt        time.Time `json:"fired_at"`
	NextDueAt      time.Time `json:"next_due_at"`
}

func (e ScheduleFired) GetType() EventType {
	return ScheduleFiredEvent
}

// RunStarted announces that a trigger matched and a run was created.
type RunStarted struct {
	BaseEvent

	RunID       string             `json:"run_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	RecordID    string             `json:"record_id,omitempty"`
	RecordType  string             `json:"record_type,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// RunCompleted announces a terminal run, successful or not.
type RunCompleted struct {
	BaseEvent

	RunID         string           `json:"run_id"`
	Status        models.RunStatus `json:"status"`
	StepsExecuted int              `json:"steps_executed"`
	Duration      time.Duration    `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// RunFailed announces an aborted run with its failure detail.
type RunFailed struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// StepCompleted announces one resolved step result inside a run.
type StepCompleted struct {
	BaseEvent

	RunID    string            `json:"run_id"`
	StepID   string            `json:"step_id"`
	Status   models.StepStatus `json:"status"`
	Attempts int               `json:"attempts"`
	Error    string            `json:"error,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}
