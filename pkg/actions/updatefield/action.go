// Package updatefield provides the action that writes a field value back to
// the CRM record that triggered the run.
package updatefield

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
	"github.com/fieldflow/fieldflow/pkg/template"
)

const requestTimeout = 15 * time.Second

// Action patches one field of the triggering record through the CRM API.
// The value supports templating, so it can be derived from other record
// fields or variables.
type Action struct {
	Field  string
	Value  any
	APIURL string
}

func NewAction(config map[string]any) (*Action, error) {
	field, ok := config["field"].(string)
	if !ok || field == "" {
		return nil, models.NewConfigurationError("field", "missing or invalid 'field' in update_field configuration")
	}

	apiURL, _ := config["api_url"].(string)
	if apiURL == "" {
		apiURL = os.Getenv("CRM_API_URL")
	}

	return &Action{
		Field:  field,
		Value:  config["value"],
		APIURL: strings.TrimRight(apiURL, "/"),
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "update_field_action", "field", a.Field)

	if a.APIURL == "" {
		return nil, models.NewConfigurationError("api_url", "no CRM API URL configured (set 'api_url' or CRM_API_URL)")
	}

	if executionCtx.RecordID == "" || executionCtx.RecordType == "" {
		return nil, fmt.Errorf("update_field requires a record-bound execution context")
	}

	value := a.Value
	if raw, ok := value.(string); ok {
		rendered, err := template.RenderWithContext(raw, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render field value: %w", err)
		}

		value = rendered
	}

	payload, err := json.Marshal(map[string]any{a.Field: value})
	if err != nil {
		return nil, fmt.Errorf("failed to encode field update: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", a.APIURL, executionCtx.RecordType, executionCtx.RecordID)

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create field update request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("field update request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("field update rejected with status %d", resp.StatusCode)
	}

	logger.Info("Updated record field", "record_id", executionCtx.RecordID, "status_code", resp.StatusCode)

	return map[string]any{
		"updated_field": a.Field,
		"updated_value": value,
	}, nil
}

// ActionFactory creates update_field actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "update_field" }

func (f *ActionFactory) Name() string { return "Update Field" }

func (f *ActionFactory) Description() string {
	return "Writes a value into one field of the record that triggered the workflow."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"description": "Name of the record field to update.",
			},
			"value": map[string]any{
				"description": "New value for the field. String values support templating.",
				"examples": []any{
					"closed",
					"{{.variables.score}}",
				},
			},
			"api_url": map[string]any{
				"type":        "string",
				"description": "Base URL of the CRM record API. Defaults to CRM_API_URL.",
			},
		},
		"required":             []string{"field"},
		"additionalProperties": false,
	}
}
