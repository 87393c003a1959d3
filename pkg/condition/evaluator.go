// Package condition evaluates boolean expression trees against a record
// execution context.
package condition

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fieldflow/fieldflow/pkg/models"
)

// Evaluator walks a condition tree with short-circuit semantics: "and" stops
// at the first false child, "or" at the first true child. An empty or nil
// tree evaluates to true.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate resolves a condition tree against the execution context. Unknown
// operators and combinators surface a configuration error.
func (e *Evaluator) Evaluate(cond models.Condition, executionCtx models.ExecutionContext) (bool, error) {
	if cond == nil {
		return true, nil
	}

	switch node := cond.(type) {
	case models.ConditionGroup:
		return e.evaluateGroup(&node, executionCtx)
	case *models.ConditionGroup:
		return e.evaluateGroup(node, executionCtx)
	case models.ConditionLeaf:
		return e.evaluateLeaf(node, executionCtx)
	case *models.ConditionLeaf:
		return e.evaluateLeaf(*node, executionCtx)
	default:
		e.logger.Debug("Unknown condition node type", "type", fmt.Sprintf("%T", cond))

		return false, models.NewConfigurationError("condition", fmt.Sprintf("unknown node type %T", cond))
	}
}

// EvaluateGroup resolves an optional top-level group, the shape workflows and
// steps carry. A nil group is an unconditional match.
func (e *Evaluator) EvaluateGroup(group *models.ConditionGroup, executionCtx models.ExecutionContext) (bool, error) {
	if group.IsEmpty() {
		return true, nil
	}

	return e.evaluateGroup(group, executionCtx)
}

func (e *Evaluator) evaluateGroup(group *models.ConditionGroup, executionCtx models.ExecutionContext) (bool, error) {
	if group.IsEmpty() {
		return true, nil
	}

	switch group.Combinator {
	case models.CombinatorAnd:
		for _, child := range group.Children {
			matched, err := e.Evaluate(child, executionCtx)
			if err != nil {
				return false, err
			}

			if !matched {
				return false, nil
			}
		}

		return true, nil
	case models.CombinatorOr:
		for _, child := range group.Children {
			matched, err := e.Evaluate(child, executionCtx)
			if err != nil {
				return false, err
			}

			if matched {
				return true, nil
			}
		}

		return false, nil
	default:
		e.logger.Debug("Unknown combinator", "combinator", string(group.Combinator))

		return false, models.NewConfigurationError("combinator", string(group.Combinator))
	}
}

func (e *Evaluator) evaluateLeaf(leaf models.ConditionLeaf, executionCtx models.ExecutionContext) (bool, error) {
	fieldValue := executionCtx.Field(leaf.Field)

	switch leaf.Operator {
	case models.OperatorEquals:
		return equalValues(fieldValue, leaf.Value), nil
	case models.OperatorNotEquals:
		return !equalValues(fieldValue, leaf.Value), nil
	case models.OperatorContains:
		return containsValue(fieldValue, leaf.Value), nil
	case models.OperatorGreaterThan:
		cmp, comparable := compareValues(fieldValue, leaf.Value)

		return comparable && cmp > 0, nil
	case models.OperatorLessThan:
		cmp, comparable := compareValues(fieldValue, leaf.Value)

		return comparable && cmp < 0, nil
	case models.OperatorIsEmpty:
		return isEmptyValue(fieldValue), nil
	case models.OperatorIsNotEmpty:
		return !isEmptyValue(fieldValue), nil
	case models.OperatorIn:
		return inList(fieldValue, leaf.Value), nil
	case models.OperatorNotIn:
		return !inList(fieldValue, leaf.Value), nil
	case models.OperatorChanged:
		return executionCtx.FieldChanged(leaf.Field), nil
	default:
		e.logger.Debug("Unknown operator", "operator", string(leaf.Operator), "field", leaf.Field)

		return false, models.NewConfigurationError("operator", string(leaf.Operator))
	}
}

// equalValues compares with numeric coercion: a numeric string and a number
// compare numerically, everything else by string equality. Nil only equals
// nil.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if cmp, comparable := compareValues(a, b); comparable {
		return cmp == 0
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues returns -1/0/1 when both values coerce to numbers.
func compareValues(a, b any) (int, bool) {
	left, okLeft := toFloat(a)
	right, okRight := toFloat(b)

	if !okLeft || !okRight {
		return 0, false
	}

	switch {
	case left < right:
		return -1, true
	case left > right:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}

func containsValue(field, needle any) bool {
	if field == nil || needle == nil {
		return false
	}

	switch value := field.(type) {
	case string:
		return strings.Contains(value, fmt.Sprintf("%v", needle))
	case []any:
		for _, item := range value {
			if equalValues(item, needle) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func isEmptyValue(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	default:
		return false
	}
}

func inList(field, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}

	for _, item := range items {
		if equalValues(field, item) {
			return true
		}
	}

	return false
}
