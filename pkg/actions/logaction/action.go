// Package logaction provides the diagnostic log action.
package logaction

import (
	"context"
	"log/slog"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
	"github.com/fieldflow/fieldflow/pkg/template"
)

// Action writes a templated message to the engine log. Useful while
// developing a workflow and as a cheap audit trail.
type Action struct {
	Message string
	Level   string
}

func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	if level == "" {
		level = "info"
	}

	return &Action{Message: message, Level: level}
}

func (a *Action) Execute(_ context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "log_action")

	message, err := template.RenderString(a.Message, executionCtx)
	if err != nil {
		return nil, err
	}

	args := []any{
		"record_id", executionCtx.RecordID,
		"record_type", executionCtx.RecordType,
	}

	switch a.Level {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}

	return map[string]any{"message": message}, nil
}

// ActionFactory creates log actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "log" }

func (f *ActionFactory) Name() string { return "Log" }

func (f *ActionFactory) Description() string {
	return "Writes a templated message to the engine log."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config), nil
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
				"examples":    []string{"Deal {{.record.name}} moved to {{.record.status}}"},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"additionalProperties": false,
	}
}
