package branch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteExportsLabel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	action := NewAction(map[string]any{"label": "won"})

	result, err := action.Execute(context.Background(), models.ExecutionContext{}, logger)
	require.NoError(t, err)
	assert.Equal(t, "won", result["selected_branch"])
}

func TestExecuteWithoutLabel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	action := NewAction(map[string]any{})

	result, err := action.Execute(context.Background(), models.ExecutionContext{}, logger)
	require.NoError(t, err)
	assert.Empty(t, result)
}
