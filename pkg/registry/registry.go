// Package registry maps action types to their handler factories.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Registry holds the action factories available to the engine. Creating an
// action validates its configuration against the factory's JSON schema, so
// a malformed step config fails as a configuration error before any handler
// runs.
type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

// RegisterAction makes an action factory available under its ID.
func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

// AvailableActions returns the registered action type IDs.
func (r *Registry) AvailableActions() []string {
	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	return types
}

// IsRegistered reports whether an action type has a factory.
func (r *Registry) IsRegistered(actionType models.ActionType) bool {
	_, exists := r.actionFactories[string(actionType)]

	return exists
}

// CreateAction builds a handler for the given action type after validating
// the configuration against the factory schema.
func (r *Registry) CreateAction(actionType models.ActionType, config map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[string(actionType)]
	if !ok {
		return nil, models.NewConfigurationError("action_type", fmt.Sprintf("%q not registered", actionType))
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// ValidateStep checks a step's action type and configuration without
// creating a handler. Used by the validate command and workflow assembly.
func (r *Registry) ValidateStep(step *models.WorkflowStep) error {
	factory, ok := r.actionFactories[string(step.ActionType)]
	if !ok {
		return models.NewConfigurationError("action_type", fmt.Sprintf("%q not registered", step.ActionType))
	}

	return r.validateConfig(factory, step.ActionConfig)
}

func (r *Registry) validateConfig(factory protocol.ActionFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema for action %s: %w", factory.ID(), err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return models.NewConfigurationError("action_config", err.Error())
	}

	if !result.Valid() {
		detail := ""
		for _, desc := range result.Errors() {
			if detail != "" {
				detail += "; "
			}

			detail += desc.String()
		}

		return models.NewConfigurationError("action_config", fmt.Sprintf("%s: %s", factory.ID(), detail))
	}

	return nil
}
