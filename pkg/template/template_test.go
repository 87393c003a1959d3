package template

import (
	"testing"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() models.ExecutionContext {
	return models.ExecutionContext{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		RecordID:   "rec-9",
		RecordType: "deal",
		RecordData: map[string]any{
			"name":   "Acme renewal",
			"amount": 1200,
			"owner":  map[string]any{"email": "kim@example.com"},
		},
		PreviousData: map[string]any{"amount": 800},
		Variables:    map[string]any{"score": 7},
	}
}

func TestRenderWithContext(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"record field", "{{.record.name}}", "Acme renewal"},
		{"numeric result is typed", "{{.record.amount}}", float64(1200)},
		{"previous snapshot", "{{.previous.amount}}", float64(800)},
		{"variable", "{{.variables.score}}", float64(7)},
		{"vars alias", "{{.vars.score}}", float64(7)},
		{"record identity", "{{.record_id}}", "rec-9"},
		{"execution identity", "{{.execution.workflow_id}}", "wf-1"},
		{"interpolation", "Deal {{.record.name}} is worth {{.record.amount}}", "Deal Acme renewal is worth 1200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderWithContext(tt.input, testContext())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderJSONOutputIsReparsed(t *testing.T) {
	got, err := RenderWithContext(`{"deal": "{{.record.name}}", "amount": {{.record.amount}}}`, testContext())
	require.NoError(t, err)

	parsed, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Acme renewal", parsed["deal"])
	assert.Equal(t, float64(1200), parsed["amount"])
}

func TestRenderInvalidTemplate(t *testing.T) {
	_, err := RenderWithContext("{{.record.name", testContext())
	require.Error(t, err)
}

func TestRenderString(t *testing.T) {
	got, err := RenderString("{{.record.amount}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "1200", got)
}

func TestRenderMap(t *testing.T) {
	config := map[string]any{
		"url":    "https://crm.example.com/deals/{{.record_id}}",
		"nested": map[string]any{"subject": "Update on {{.record.name}}"},
		"count":  3,
	}

	rendered, err := RenderMap(config, testContext())
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com/deals/rec-9", rendered["url"])
	assert.Equal(t, "Update on Acme renewal", rendered["nested"].(map[string]any)["subject"])
	assert.Equal(t, 3, rendered["count"])
}
