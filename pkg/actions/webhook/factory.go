package webhook

import (
	"github.com/fieldflow/fieldflow/pkg/protocol"
)

// ActionFactory creates webhook actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string {
	return "webhook"
}

func (f *ActionFactory) Name() string {
	return "Webhook"
}

func (f *ActionFactory) Description() string {
	return "Calls an external HTTP endpoint with a templated URL, headers, and body."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to call. Supports templating against the execution context.",
				"examples": []string{
					"https://hooks.example.com/deal-won",
					"https://api.example.com/records/{{.record_id}}/notify",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating for dynamic JSON content.",
				"examples": []string{
					`{"deal": "{{.record.name}}", "amount": {{.record.amount}}}`,
				},
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds.",
				"default":     30,
				"minimum":     1,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
