package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

func (p *Persistence) workflowPath(id string) string {
	return filepath.Join(p.root, "workflows", id+".json")
}

// Workflows loads every workflow document under the workflows directory.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	root := os.DirFS(filepath.Join(p.root, "workflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-len(".json")]

		workflow, err := p.WorkflowByID(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	data, err := os.ReadFile(p.workflowPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, persistence.NewStoreError("read workflow", id, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, persistence.NewStoreError("decode workflow", id, err)
	}

	return &workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return persistence.NewStoreError("encode workflow", workflow.ID, err)
	}

	if err := os.WriteFile(p.workflowPath(workflow.ID), data, 0o644); err != nil {
		return persistence.NewStoreError("write workflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	err := os.Remove(p.workflowPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return persistence.NewStoreError("delete workflow", id, err)
	}

	return nil
}

func (p *Persistence) RunHistory() persistence.RunHistory { return p.history }

func (p *Persistence) Counters() persistence.CounterStore { return p.counters }
