package models

// ActionType identifies the handler dispatched for a workflow step.
type ActionType string

const (
	ActionSendEmail   ActionType = "send_email"
	ActionUpdateField ActionType = "update_field"
	ActionCreateTask  ActionType = "create_task"
	ActionWebhook     ActionType = "webhook"
	ActionWait        ActionType = "wait"
	ActionBranch      ActionType = "branch"
	ActionLog         ActionType = "log"
	ActionTransform   ActionType = "transform"
)

// WorkflowStep is one action in a workflow pipeline. Steps are owned by their
// workflow and ordered by Order; consecutive steps sharing a BranchID form
// either a parallel group (IsParallel) or a set of alternative branches.
type WorkflowStep struct {
	ID                string          `json:"id"`
	ActionType        ActionType      `json:"action_type" validate:"required"`
	Order             int             `json:"order"       validate:"min=0"`
	Name              string          `json:"name,omitempty" validate:"max=255"`
	ActionConfig      map[string]any  `json:"action_config,omitempty"`
	Conditions        *ConditionGroup `json:"conditions,omitempty"`
	BranchID          *string         `json:"branch_id,omitempty"`
	IsParallel        bool            `json:"is_parallel"`
	ContinueOnError   bool            `json:"continue_on_error"`
	RetryCount        int             `json:"retry_count"         validate:"min=0"`
	RetryDelaySeconds int             `json:"retry_delay_seconds" validate:"min=0"`
}

// Validate checks the step invariants.
func (s *WorkflowStep) Validate() error {
	if s.ActionType == "" {
		return NewValidationError("action_type", "must not be empty")
	}

	if s.Order < 0 {
		return NewValidationError("order", "must not be negative")
	}

	if len(s.Name) > 255 {
		return NewValidationError("name", "must be at most 255 characters")
	}

	if s.RetryCount < 0 {
		return NewValidationError("retry_count", "must not be negative")
	}

	if s.RetryDelaySeconds < 0 {
		return NewValidationError("retry_delay_seconds", "must not be negative")
	}

	return nil
}
