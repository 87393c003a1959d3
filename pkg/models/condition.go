// Package models defines the core domain models for record-event workflow automation.
package models

import (
	"encoding/json"
	"fmt"
)

// Combinator joins the children of a condition group.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Operator is the comparison applied by a condition leaf.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorChanged     Operator = "changed"
)

// Condition is a node in a boolean expression tree over record fields.
// It is either a ConditionLeaf or a ConditionGroup.
type Condition interface {
	isCondition()
}

// ConditionLeaf compares one record field against a value.
type ConditionLeaf struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

func (ConditionLeaf) isCondition() {}

// ConditionGroup combines child conditions with a single combinator.
// An empty group evaluates to true (unconditional match).
type ConditionGroup struct {
	Combinator Combinator  `json:"combinator"`
	Children   []Condition `json:"children"`
}

func (ConditionGroup) isCondition() {}

// IsEmpty reports whether the group has no children at any depth worth
// evaluating. A nil group is treated the same way by the evaluator.
func (g *ConditionGroup) IsEmpty() bool {
	return g == nil || len(g.Children) == 0
}

type conditionGroupJSON struct {
	Combinator Combinator        `json:"combinator"`
	Children   []json.RawMessage `json:"children"`
}

// UnmarshalJSON decodes a condition group, dispatching each child to a leaf
// or a nested group depending on the presence of a "combinator" key.
func (g *ConditionGroup) UnmarshalJSON(data []byte) error {
	var raw conditionGroupJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode condition group: %w", err)
	}

	g.Combinator = raw.Combinator
	g.Children = make([]Condition, 0, len(raw.Children))

	for _, child := range raw.Children {
		cond, err := unmarshalCondition(child)
		if err != nil {
			return err
		}

		g.Children = append(g.Children, cond)
	}

	return nil
}

func unmarshalCondition(data []byte) (Condition, error) {
	var probe map[string]json.RawMessage

	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode condition node: %w", err)
	}

	if _, isGroup := probe["combinator"]; isGroup {
		var group ConditionGroup
		if err := json.Unmarshal(data, &group); err != nil {
			return nil, err
		}

		return group, nil
	}

	var leaf ConditionLeaf
	if err := json.Unmarshal(data, &leaf); err != nil {
		return nil, fmt.Errorf("failed to decode condition leaf: %w", err)
	}

	return leaf, nil
}

// UnmarshalConditionConfig decodes a condition tree embedded in an action
// configuration value, as produced by json.Unmarshal into map[string]any.
func UnmarshalConditionConfig(value any) (*ConditionGroup, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode condition config: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, NewConfigurationError("condition", "condition config must be an object")
	}

	// A bare leaf (field/operator keys, no combinator) would otherwise decode
	// into an empty, always-true group.
	if _, isGroup := probe["combinator"]; !isGroup && len(probe) > 0 {
		return nil, NewConfigurationError("condition", "condition config must be a group with a combinator")
	}

	var group ConditionGroup
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, err
	}

	return &group, nil
}
