// Package branch provides the branch gate action. The runner consumes the
// gate's selector to pick a branch; the action itself only records the
// selection when its branch runs.
package branch

import (
	"context"
	"log/slog"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
)

// Action is the body of a selected branch gate.
type Action struct {
	label string
}

func NewAction(config map[string]any) *Action {
	label, _ := config["label"].(string)

	return &Action{label: label}
}

func (a *Action) Execute(_ context.Context, _ models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger.Debug("Branch selected", "module", "branch_action", "label", a.label)

	result := map[string]any{}

	if a.label != "" {
		result["selected_branch"] = a.label
	}

	return result, nil
}

// ActionFactory creates branch gate actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "branch" }

func (f *ActionFactory) Name() string { return "Branch" }

func (f *ActionFactory) Description() string {
	return "Gates a branch of alternative steps behind a condition tree selector."
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
			"selector": map[string]any{
				"type":        "object",
				"description": "Condition tree deciding whether this branch runs. A gate without a selector always matches, acting as the else branch.",
			},
			"label": map[string]any{
				"type":        "string",
				"description": "Optional label exported as the selected_branch variable.",
			},
		},
		"additionalProperties": false,
	}
}
