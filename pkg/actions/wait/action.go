// Package wait provides the action that pauses a run for a fixed duration.
package wait

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
)

// Action suspends the run for the configured number of seconds. The wait is
// cancellation-aware: a cancelled run does not keep a timer alive.
type Action struct {
	Duration time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	seconds, ok := config["seconds"].(float64)
	if !ok || seconds <= 0 {
		return nil, models.NewConfigurationError("seconds", "missing or invalid 'seconds' in wait configuration")
	}

	return &Action{Duration: time.Duration(seconds) * time.Second}, nil
}

func (a *Action) Execute(ctx context.Context, _ models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "wait_action")
	logger.Debug("Waiting", "duration", a.Duration)

	timer := time.NewTimer(a.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]any{"waited_seconds": a.Duration.Seconds()}, nil
}

// ActionFactory creates wait actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "wait" }

func (f *ActionFactory) Name() string { return "Wait" }

func (f *ActionFactory) Description() string {
	return "Pauses the run for a fixed number of seconds before the next step."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":        "number",
				"description": "Seconds to wait.",
				"minimum":     0,
			},
		},
		"required":             []string{"seconds"},
		"additionalProperties": false,
	}
}
