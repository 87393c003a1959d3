package updatefield

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
		RecordID:   "rec-7",
		RecordType: "deal",
		RecordData: map[string]any{"status": "open", "owner": "kim"},
		Variables:  map[string]any{"score": 9},
	}
}

func TestNewActionRequiresField(t *testing.T) {
	_, err := NewAction(map[string]any{"value": "x"})
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
}

func TestExecutePatchesRecord(t *testing.T) {
	var method, path string

	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"field":   "status",
		"value":   "closed",
		"api_url": server.URL,
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), testContext(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/deal/rec-7", path)
	assert.Equal(t, map[string]any{"status": "closed"}, payload)
	assert.Equal(t, "status", result["updated_field"])
	assert.Equal(t, "closed", result["updated_value"])
}

func TestExecuteTemplatedValue(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"field":   "priority_score",
		"value":   "{{.variables.score}}",
		"api_url": server.URL,
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), testContext(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, float64(9), payload["priority_score"])
}

func TestExecuteRejectedUpdateFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"field":   "status",
		"value":   "closed",
		"api_url": server.URL,
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), testContext(), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestExecuteWithoutAPIURLFails(t *testing.T) {
	t.Setenv("CRM_API_URL", "")

	action, err := NewAction(map[string]any{"field": "status", "value": "closed"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), testContext(), testLogger())
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
}

func TestExecuteWithoutRecordFails(t *testing.T) {
	action, err := NewAction(map[string]any{
		"field":   "status",
		"value":   "closed",
		"api_url": "http://crm.invalid",
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), models.ExecutionContext{}, testLogger())
	require.Error(t, err)
}
