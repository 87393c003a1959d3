// Package createtask provides the action that opens a follow-up task in the
// CRM, linked to the record that triggered the run.
package createtask

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

// Action creates a task through the CRM API. Title and description support
// templating against the execution context.
type Action struct {
	Title       string
	Description string
	Assignee    string
	DueInDays   int
	APIURL      string
}

func NewAction(config map[string]any) (*Action, error) {
	title, ok := config["title"].(string)
	if !ok || title == "" {
		return nil, models.NewConfigurationError("title", "missing or invalid 'title' in create_task configuration")
	}

	description, _ := config["description"].(string)
	assignee, _ := config["assignee"].(string)

	dueInDays := 0
	if days, ok := config["due_in_days"].(float64); ok && days > 0 {
		dueInDays = int(days)
	}

	apiURL, _ := config["api_url"].(string)
	if apiURL == "" {
		apiURL = os.Getenv("CRM_API_URL")
	}

	return &Action{
		Title:       title,
		Description: description,
		Assignee:    assignee,
		DueInDays:   dueInDays,
		APIURL:      strings.TrimRight(apiURL, "/"),
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "create_task_action")

	if a.APIURL == "" {
		return nil, models.NewConfigurationError("api_url", "no CRM API URL configured (set 'api_url' or CRM_API_URL)")
	}

	title, err := template.RenderString(a.Title, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render task title: %w", err)
	}

	description := ""

	if a.Description != "" {
		description, err = template.RenderString(a.Description, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render task description: %w", err)
		}
	}

	task := map[string]any{
		"title":       title,
		"description": description,
		"record_id":   executionCtx.RecordID,
		"record_type": executionCtx.RecordType,
	}

	if a.Assignee != "" {
		task["assignee"] = a.Assignee
	}

	if a.DueInDays > 0 {
		task["due_at"] = time.Now().UTC().AddDate(0, 0, a.DueInDays).Format(time.RFC3339)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.APIURL+"/tasks", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create task request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("task creation rejected with status %d", resp.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		created = nil
	}

	logger.Info("Created task", "title", title, "status_code", resp.StatusCode)

	result := map[string]any{"task_title": title}

	if taskID, ok := created["id"]; ok {
		result["task_id"] = taskID
	}

	return result, nil
}

// ActionFactory creates create_task actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "create_task" }

func (f *ActionFactory) Name() string { return "Create Task" }

func (f *ActionFactory) Description() string {
	return "Opens a follow-up task linked to the triggering record."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Task title. Supports templating.",
				"examples":    []string{"Call {{.record.contact_name}} about renewal"},
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Task body. Supports templating.",
			},
			"assignee": map[string]any{
				"type":        "string",
				"description": "User the task is assigned to.",
			},
			"due_in_days": map[string]any{
				"type":        "integer",
				"description": "Days from now until the task is due.",
				"minimum":     0,
			},
			"api_url": map[string]any{
				"type":        "string",
				"description": "Base URL of the CRM API. Defaults to CRM_API_URL.",
			},
		},
		"required":             []string{"title"},
		"additionalProperties": false,
	}
}
