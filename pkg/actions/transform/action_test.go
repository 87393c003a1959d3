package transform

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext() models.ExecutionContext {
	return models.ExecutionContext{
		RecordData: map[string]any{"amount": 1200, "name": "Acme"},
		Variables:  map[string]any{"multiplier": 2},
	}
}

func TestNewActionRequiresExpression(t *testing.T) {
	_, err := NewAction(map[string]any{})
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
}

func TestExecuteStoresResultUnderOutput(t *testing.T) {
	action, err := NewAction(map[string]any{
		"expression": "{{.record.amount}}",
		"output":     "deal_amount",
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), testContext(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, float64(1200), result["deal_amount"])
}

func TestExecuteDefaultOutputAndJSON(t *testing.T) {
	action, err := NewAction(map[string]any{
		"expression": `{"deal": "{{.record.name}}"}`,
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), testContext(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"deal": "Acme"}, result[defaultOutputVariable])
}

func TestExecuteBrokenExpressionFails(t *testing.T) {
	action, err := NewAction(map[string]any{"expression": "{{.record.name"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), testContext(), testLogger())
	require.Error(t, err)
}
