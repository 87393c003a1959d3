// Package memory provides an in-memory persistence implementation, used by
// tests and single-process development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

// Persistence keeps workflows, runs, and counters in process memory.
type Persistence struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	history   *runHistory
	counters  *counterStore
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows: make(map[string]*models.Workflow),
		history:   &runHistory{},
		counters:  &counterStore{stats: make(map[string]*models.WorkflowStats)},
	}
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, workflow := range p.workflows {
		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = workflow

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) RunHistory() persistence.RunHistory { return p.history }

func (p *Persistence) Counters() persistence.CounterStore { return p.counters }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

type runHistory struct {
	mu   sync.RWMutex
	runs []*models.ExecutionRun
}

func (h *runHistory) Record(_ context.Context, run *models.ExecutionRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs = append(h.runs, run)

	return nil
}

func (h *runHistory) HasSuccessfulRun(_ context.Context, workflowID, recordID string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, run := range h.runs {
		if run.WorkflowID == workflowID && run.Context.RecordID == recordID && run.Succeeded() {
			return true, nil
		}
	}

	return false, nil
}

func (h *runHistory) CountExecutionsToday(_ context.Context, workflowID string, now time.Time) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count := 0

	for _, run := range h.runs {
		if run.WorkflowID == workflowID && !run.StartedAt.Before(dayStart) && run.StartedAt.Before(dayStart.AddDate(0, 0, 1)) {
			count++
		}
	}

	return count, nil
}

func (h *runHistory) RunsByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	runs := make([]*models.ExecutionRun, 0)

	for i := len(h.runs) - 1; i >= 0; i-- {
		if h.runs[i].WorkflowID != workflowID {
			continue
		}

		runs = append(runs, h.runs[i])

		if limit > 0 && len(runs) >= limit {
			break
		}
	}

	return runs, nil
}

func (h *runHistory) RunByID(_ context.Context, runID string) (*models.ExecutionRun, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, run := range h.runs {
		if run.ID == runID {
			return run, nil
		}
	}

	return nil, persistence.ErrRunNotFound
}

type counterStore struct {
	mu    sync.Mutex
	stats map[string]*models.WorkflowStats
}

func (c *counterStore) IncrementRun(_ context.Context, workflowID string, succeeded bool, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.stats[workflowID]
	if !ok {
		stats = &models.WorkflowStats{WorkflowID: workflowID}
		c.stats[workflowID] = stats
	}

	stats.ExecutionCount++

	if succeeded {
		stats.SuccessCount++
	} else {
		stats.FailureCount++
	}

	runAt := at
	stats.LastRunAt = &runAt

	return nil
}

func (c *counterStore) Stats(_ context.Context, workflowID string) (*models.WorkflowStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.stats[workflowID]
	if !ok {
		return &models.WorkflowStats{WorkflowID: workflowID}, nil
	}

	copied := *stats

	return &copied, nil
}
