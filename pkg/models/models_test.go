package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Validation_Valid(t *testing.T) {
	limit := 5
	workflow := &Workflow{
		ID:                  "wf-123",
		Name:                "Notify owner on deal close",
		Module:              "deals",
		TriggerType:         TriggerRecordUpdated,
		TriggerTiming:       TimingOnUpdate,
		WatchedFields:       []string{"status"},
		MaxExecutionsPerDay: &limit,
		Active:              true,
	}

	validate := validator.New()
	assert.NoError(t, validate.Struct(workflow))
	assert.NoError(t, workflow.Validate())
}

func TestWorkflow_Validation_EmptyName(t *testing.T) {
	workflow := &Workflow{
		ID:          "wf-123",
		Module:      "deals",
		TriggerType: TriggerRecordCreated,
	}

	validate := validator.New()
	assert.Error(t, validate.Struct(workflow))

	err := workflow.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_Validation_NegativeDelay(t *testing.T) {
	workflow := &Workflow{
		ID:           "wf-123",
		Name:         "Test",
		Module:       "deals",
		TriggerType:  TriggerRecordCreated,
		DelaySeconds: -1,
	}

	err := workflow.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_Validation_ZeroExecutionCap(t *testing.T) {
	limit := 0
	workflow := &Workflow{
		ID:                  "wf-123",
		Name:                "Test",
		Module:              "deals",
		TriggerType:         TriggerRecordCreated,
		MaxExecutionsPerDay: &limit,
	}

	err := workflow.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_Validation_ScheduledRequiresCron(t *testing.T) {
	workflow := &Workflow{
		ID:          "wf-123",
		Name:        "Nightly digest",
		Module:      "reports",
		TriggerType: TriggerScheduled,
	}

	err := workflow.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	workflow.ScheduleCron = "0 2 * * *"
	assert.NoError(t, workflow.Validate())
}

func TestWorkflowStep_Validation_NegativeRetry(t *testing.T) {
	step := &WorkflowStep{
		ID:         "step-1",
		ActionType: ActionWebhook,
		RetryCount: -1,
	}

	err := step.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestExecutionContext_FieldChanged_CreatePath(t *testing.T) {
	ctx := ExecutionContext{
		RecordData: map[string]any{"status": "open", "amount": 100.0},
	}

	require.True(t, ctx.IsCreate())
	assert.False(t, ctx.FieldChanged("status"))
	assert.False(t, ctx.FieldChanged("amount"))
	assert.Nil(t, ctx.ChangedFields())
}

func TestExecutionContext_ChangedFields(t *testing.T) {
	ctx := ExecutionContext{
		RecordData:   map[string]any{"status": "closed", "amount": 100.0},
		PreviousData: map[string]any{"status": "open", "amount": 100.0, "owner": "ana"},
	}

	require.True(t, ctx.IsUpdate())
	assert.True(t, ctx.FieldChanged("status"))
	assert.False(t, ctx.FieldChanged("amount"))
	assert.True(t, ctx.FieldChanged("owner")) // removed field counts as changed

	changed := ctx.ChangedFields()
	assert.ElementsMatch(t, []string{"status", "owner"}, changed)
}

func TestExecutionContext_WithVariable_Immutable(t *testing.T) {
	original := ExecutionContext{ID: "exec-1"}

	derived := original.WithVariable("a", 1).WithVariable("b", 2)

	assert.Empty(t, original.Variables)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, derived.Variables)
}

func TestExecutionContext_WithVariables_OverwritesKeys(t *testing.T) {
	base := ExecutionContext{}.WithVariable("x", "old")

	merged := base.WithVariables(map[string]any{"x": "new", "y": 1})

	assert.Equal(t, "old", base.Variables["x"])
	assert.Equal(t, "new", merged.Variables["x"])
	assert.Equal(t, 1, merged.Variables["y"])
}

func TestExecutionContext_WithRecordData_LeavesOriginal(t *testing.T) {
	original := ExecutionContext{RecordData: map[string]any{"status": "open"}}

	updated := original.WithRecordData(map[string]any{"status": "closed"})

	assert.Equal(t, "open", original.RecordData["status"])
	assert.Equal(t, "closed", updated.RecordData["status"])
}

func TestConditionGroup_UnmarshalJSON_NestedTree(t *testing.T) {
	payload := `{
		"combinator": "and",
		"children": [
			{"field": "status", "operator": "equals", "value": "open"},
			{
				"combinator": "or",
				"children": [
					{"field": "amount", "operator": "greater_than", "value": 100},
					{"field": "priority", "operator": "is_not_empty"}
				]
			}
		]
	}`

	var group ConditionGroup
	require.NoError(t, json.Unmarshal([]byte(payload), &group))

	require.Len(t, group.Children, 2)
	assert.Equal(t, CombinatorAnd, group.Combinator)

	leaf, ok := group.Children[0].(ConditionLeaf)
	require.True(t, ok)
	assert.Equal(t, "status", leaf.Field)
	assert.Equal(t, OperatorEquals, leaf.Operator)

	nested, ok := group.Children[1].(ConditionGroup)
	require.True(t, ok)
	assert.Equal(t, CombinatorOr, nested.Combinator)
	require.Len(t, nested.Children, 2)
}

func TestUnmarshalConditionConfig_GroupShape(t *testing.T) {
	rule, err := UnmarshalConditionConfig(map[string]any{
		"combinator": "and",
		"children": []any{
			map[string]any{"field": "stage", "operator": "equals", "value": "won"},
		},
	})
	require.NoError(t, err)
	require.Len(t, rule.Children, 1)
	assert.Equal(t, CombinatorAnd, rule.Combinator)
}

func TestUnmarshalConditionConfig_RejectsBareLeaf(t *testing.T) {
	_, err := UnmarshalConditionConfig(map[string]any{
		"field":    "stage",
		"operator": "equals",
		"value":    "won",
	})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestUnmarshalConditionConfig_NilIsUnconditional(t *testing.T) {
	rule, err := UnmarshalConditionConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestSchedule_InvalidCron(t *testing.T) {
	_, err := NewSchedule("wf-1", "not a cron")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestSchedule_Advance(t *testing.T) {
	schedule, err := NewSchedule("wf-1", "*/5 * * * *")
	require.NoError(t, err)
	assert.True(t, schedule.Active)
	assert.False(t, schedule.NextDueAt.IsZero())

	first := schedule.NextDueAt
	require.NoError(t, schedule.Advance(first))
	assert.True(t, schedule.NextDueAt.After(first))
}

func TestWorkflowStats_SuccessRate(t *testing.T) {
	stats := &WorkflowStats{ExecutionCount: 4, SuccessCount: 3, FailureCount: 1}
	assert.InDelta(t, 0.75, stats.SuccessRate(), 0.0001)

	empty := &WorkflowStats{}
	assert.Zero(t, empty.SuccessRate())
}
