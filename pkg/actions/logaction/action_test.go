package logaction

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRendersAndLogs(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	action := NewAction(map[string]any{
		"message": "Deal {{.record.name}} moved to {{.record.status}}",
		"level":   "warn",
	})

	ectx := models.ExecutionContext{
		RecordID:   "rec-1",
		RecordType: "deal",
		RecordData: map[string]any{"name": "Acme", "status": "won"},
	}

	result, err := action.Execute(context.Background(), ectx, logger)
	require.NoError(t, err)

	assert.Equal(t, "Deal Acme moved to won", result["message"])
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Deal Acme moved to won")
	assert.Contains(t, buf.String(), "record_id=rec-1")
}

func TestExecuteDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	action := NewAction(map[string]any{"message": "plain"})

	_, err := action.Execute(context.Background(), models.ExecutionContext{}, logger)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=INFO")
}
