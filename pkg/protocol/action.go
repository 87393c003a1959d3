// Package protocol defines the contracts between the execution engine and
// its pluggable collaborators.
package protocol

import (
	"context"
	"log/slog"

	"github.com/fieldflow/fieldflow/pkg/models"
)

// Action is one executable step handler. A handler receives the immutable
// execution context and returns the variables it produced; the engine merges
// them into the context via copy-on-write. Handlers must not retain or
// mutate the context.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates action handlers for one action type and describes
// the configuration it expects.
type ActionFactory interface {
	// ID returns the action type this factory serves.
	ID() string

	// Name returns the human-readable name of the action.
	Name() string

	// Description returns a short description of what the action does.
	Description() string

	// Schema returns the JSON schema the action configuration must satisfy.
	Schema() map[string]any

	// Create builds an action handler from a step's action configuration.
	Create(config map[string]any) (Action, error)
}
