package models

import (
	"fmt"
	"maps"
)

// ExecutionContext is the immutable snapshot of record state, variables, and
// metadata threaded through one run attempt. Mutators return a copy so that
// parallel branches never observe each other's in-flight variable writes.
type ExecutionContext struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	TriggerType  TriggerType    `json:"trigger_type"`
	RecordID     string         `json:"record_id"`
	RecordType   string         `json:"record_type"`
	RecordData   map[string]any `json:"record_data,omitempty"`
	PreviousData map[string]any `json:"previous_data,omitempty"`
	TriggeredBy  *string        `json:"triggered_by_user_id,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IsCreate reports whether the context describes a record creation. A nil
// PreviousData is the create signal.
func (c ExecutionContext) IsCreate() bool {
	return c.PreviousData == nil
}

// IsUpdate reports whether the context describes a record update.
func (c ExecutionContext) IsUpdate() bool {
	return c.PreviousData != nil
}

// Field returns the current value of a record field. Missing fields read as
// nil, which only satisfies is_empty / not_equals comparisons.
func (c ExecutionContext) Field(name string) any {
	if c.RecordData == nil {
		return nil
	}

	return c.RecordData[name]
}

// FieldChanged reports whether a field differs between the previous and
// current record data. Always false on the create path.
func (c ExecutionContext) FieldChanged(name string) bool {
	if c.PreviousData == nil {
		return false
	}

	return !equalFieldValue(c.PreviousData[name], c.RecordData[name])
}

// ChangedFields returns the set of field names whose value differs between
// the previous record data and the current record data.
func (c ExecutionContext) ChangedFields() []string {
	if c.PreviousData == nil {
		return nil
	}

	changed := make([]string, 0)

	for name := range c.RecordData {
		if !equalFieldValue(c.PreviousData[name], c.RecordData[name]) {
			changed = append(changed, name)
		}
	}

	for name := range c.PreviousData {
		if _, stillPresent := c.RecordData[name]; !stillPresent {
			changed = append(changed, name)
		}
	}

	return changed
}

// WithVariable returns a copy of the context with one variable set. The
// receiver is left untouched.
func (c ExecutionContext) WithVariable(key string, value any) ExecutionContext {
	variables := make(map[string]any, len(c.Variables)+1)
	maps.Copy(variables, c.Variables)
	variables[key] = value

	c.Variables = variables

	return c
}

// WithVariables returns a copy of the context with every entry of vars
// merged in. Keys already present are overwritten.
func (c ExecutionContext) WithVariables(vars map[string]any) ExecutionContext {
	if len(vars) == 0 {
		return c
	}

	variables := make(map[string]any, len(c.Variables)+len(vars))
	maps.Copy(variables, c.Variables)
	maps.Copy(variables, vars)

	c.Variables = variables

	return c
}

// WithRecordData returns a copy of the context with the record data replaced.
func (c ExecutionContext) WithRecordData(data map[string]any) ExecutionContext {
	c.RecordData = maps.Clone(data)

	return c
}

func equalFieldValue(a, b any) bool {
	if a == nil && b == nil {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	// Record payloads arrive via JSON, so values are scalars, []any, or
	// map[string]any. Scalars compare directly; composites by string form.
	switch a.(type) {
	case string, bool, float64, int, int64:
		return a == b
	default:
		return stringify(a) == stringify(b)
	}
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}
