package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

const workflowColumns = `
	id
  , name
  , module
  , trigger_type
  , trigger_timing
  , trigger_config
  , watched_fields
  , conditions
  , priority
  , stop_on_first_match
  , max_executions_per_day
  , run_once_per_record
  , allow_manual_trigger
  , delay_seconds
  , schedule_cron
  , active
  , steps
  , created_at
  , updated_at
`

// Workflows returns all workflows ordered by priority.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY priority DESC, id ASC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("read workflow", id, err)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	triggerConfig, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return persistence.NewStoreError("encode trigger config", workflow.ID, err)
	}

	watchedFields, err := json.Marshal(workflow.WatchedFields)
	if err != nil {
		return persistence.NewStoreError("encode watched fields", workflow.ID, err)
	}

	conditions, err := json.Marshal(workflow.Conditions)
	if err != nil {
		return persistence.NewStoreError("encode conditions", workflow.ID, err)
	}

	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return persistence.NewStoreError("encode steps", workflow.ID, err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			module = EXCLUDED.module,
			trigger_type = EXCLUDED.trigger_type,
			trigger_timing = EXCLUDED.trigger_timing,
			trigger_config = EXCLUDED.trigger_config,
			watched_fields = EXCLUDED.watched_fields,
			conditions = EXCLUDED.conditions,
			priority = EXCLUDED.priority,
			stop_on_first_match = EXCLUDED.stop_on_first_match,
			max_executions_per_day = EXCLUDED.max_executions_per_day,
			run_once_per_record = EXCLUDED.run_once_per_record,
			allow_manual_trigger = EXCLUDED.allow_manual_trigger,
			delay_seconds = EXCLUDED.delay_seconds,
			schedule_cron = EXCLUDED.schedule_cron,
			active = EXCLUDED.active,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Module,
		workflow.TriggerType,
		workflow.TriggerTiming,
		triggerConfig,
		watchedFields,
		conditions,
		workflow.Priority,
		workflow.StopOnFirstMatch,
		workflow.MaxExecutionsPerDay,
		workflow.RunOncePerRecord,
		workflow.AllowManualTrigger,
		workflow.DelaySeconds,
		workflow.ScheduleCron,
		workflow.Active,
		steps,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("save workflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("delete workflow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("delete workflow", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		triggerConfig []byte
		watchedFields []byte
		conditions    []byte
		steps         []byte
		triggerTiming sql.NullString
		scheduleCron  sql.NullString
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Module,
		&workflow.TriggerType,
		&triggerTiming,
		&triggerConfig,
		&watchedFields,
		&conditions,
		&workflow.Priority,
		&workflow.StopOnFirstMatch,
		&workflow.MaxExecutionsPerDay,
		&workflow.RunOncePerRecord,
		&workflow.AllowManualTrigger,
		&workflow.DelaySeconds,
		&scheduleCron,
		&workflow.Active,
		&steps,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.TriggerTiming = models.TriggerTiming(triggerTiming.String)
	workflow.ScheduleCron = scheduleCron.String

	if len(triggerConfig) > 0 {
		if err := json.Unmarshal(triggerConfig, &workflow.TriggerConfig); err != nil {
			return nil, fmt.Errorf("failed to decode trigger config: %w", err)
		}
	}

	if len(watchedFields) > 0 {
		if err := json.Unmarshal(watchedFields, &workflow.WatchedFields); err != nil {
			return nil, fmt.Errorf("failed to decode watched fields: %w", err)
		}
	}

	if len(conditions) > 0 && string(conditions) != "null" {
		if err := json.Unmarshal(conditions, &workflow.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode conditions: %w", err)
		}
	}

	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &workflow.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
	}

	return &workflow, nil
}
