// Package transform provides the action that derives a new variable from
// the execution context via a template expression.
package transform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
	"github.com/fieldflow/fieldflow/pkg/template"
)

const defaultOutputVariable = "transformed"

// Action evaluates a template expression against the context and stores the
// result under a named variable for later steps.
type Action struct {
	Expression string
	Output     string
}

func NewAction(config map[string]any) (*Action, error) {
	expression, ok := config["expression"].(string)
	if !ok || expression == "" {
		return nil, models.NewConfigurationError("expression", "missing or invalid 'expression' in transform configuration")
	}

	output, _ := config["output"].(string)
	if output == "" {
		output = defaultOutputVariable
	}

	return &Action{Expression: expression, Output: output}, nil
}

func (a *Action) Execute(_ context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "transform_action", "output", a.Output)

	value, err := template.RenderWithContext(a.Expression, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate transform expression: %w", err)
	}

	logger.Debug("Transform produced value")

	return map[string]any{a.Output: value}, nil
}

// ActionFactory creates transform actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "transform" }

func (f *ActionFactory) Name() string { return "Transform" }

func (f *ActionFactory) Description() string {
	return "Evaluates a template expression and stores the result as a variable."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Template expression evaluated against the execution context.",
				"examples": []string{
					"{{.record.amount}}",
					`{"deal": "{{.record.name}}", "owner": "{{.record.owner_email}}"}`,
				},
			},
			"output": map[string]any{
				"type":        "string",
				"description": "Variable name the result is stored under.",
				"default":     defaultOutputVariable,
			},
		},
		"required":             []string{"expression"},
		"additionalProperties": false,
	}
}
