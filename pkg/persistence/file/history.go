package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

// RunHistory stores each run as one JSON document under runs/. Reads scan
// the directory, which is fine at file-persistence scale.
type RunHistory struct {
	root string
	mu   sync.RWMutex
}

func NewRunHistory(root string) *RunHistory {
	return &RunHistory{root: root}
}

func (h *RunHistory) runPath(runID string) string {
	return filepath.Join(h.root, "runs", runID+".json")
}

func (h *RunHistory) Record(_ context.Context, run *models.ExecutionRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return persistence.NewStoreError("encode run", run.WorkflowID, err)
	}

	if err := os.WriteFile(h.runPath(run.ID), data, 0o644); err != nil {
		return persistence.NewStoreError("write run", run.WorkflowID, err)
	}

	return nil
}

func (h *RunHistory) HasSuccessfulRun(ctx context.Context, workflowID, recordID string) (bool, error) {
	runs, err := h.loadAll(ctx)
	if err != nil {
		return false, err
	}

	for _, run := range runs {
		if run.WorkflowID == workflowID && run.Context.RecordID == recordID && run.Succeeded() {
			return true, nil
		}
	}

	return false, nil
}

func (h *RunHistory) CountExecutionsToday(ctx context.Context, workflowID string, now time.Time) (int, error) {
	runs, err := h.loadAll(ctx)
	if err != nil {
		return 0, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count := 0

	for _, run := range runs {
		if run.WorkflowID == workflowID && !run.StartedAt.Before(dayStart) && run.StartedAt.Before(dayStart.AddDate(0, 0, 1)) {
			count++
		}
	}

	return count, nil
}

func (h *RunHistory) RunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	runs, err := h.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ExecutionRun, 0)

	for _, run := range runs {
		if run.WorkflowID == workflowID {
			matched = append(matched, run)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

func (h *RunHistory) RunByID(_ context.Context, runID string) (*models.ExecutionRun, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := os.ReadFile(h.runPath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, persistence.NewStoreError("read run", "", err)
	}

	var run models.ExecutionRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, persistence.NewStoreError("decode run", "", err)
	}

	return &run, nil
}

func (h *RunHistory) loadAll(_ context.Context) ([]*models.ExecutionRun, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	root := os.DirFS(filepath.Join(h.root, "runs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.ExecutionRun, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		data, err := os.ReadFile(filepath.Join(h.root, "runs", file))
		if err != nil {
			return nil, persistence.NewStoreError("read run", "", err)
		}

		var run models.ExecutionRun
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, persistence.NewStoreError("decode run", "", err)
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

// CounterStore keeps all workflow counters in one JSON document guarded by
// a process-wide mutex.
type CounterStore struct {
	path string
	mu   sync.Mutex
}

func NewCounterStore(root string) *CounterStore {
	return &CounterStore{path: filepath.Join(root, "counters.json")}
}

func (c *CounterStore) IncrementRun(_ context.Context, workflowID string, succeeded bool, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.load()
	if err != nil {
		return err
	}

	stats, ok := all[workflowID]
	if !ok {
		stats = &models.WorkflowStats{WorkflowID: workflowID}
		all[workflowID] = stats
	}

	stats.ExecutionCount++

	if succeeded {
		stats.SuccessCount++
	} else {
		stats.FailureCount++
	}

	runAt := at
	stats.LastRunAt = &runAt

	return c.save(all)
}

func (c *CounterStore) Stats(_ context.Context, workflowID string) (*models.WorkflowStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.load()
	if err != nil {
		return nil, err
	}

	stats, ok := all[workflowID]
	if !ok {
		return &models.WorkflowStats{WorkflowID: workflowID}, nil
	}

	return stats, nil
}

func (c *CounterStore) load() (map[string]*models.WorkflowStats, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*models.WorkflowStats), nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("read counters", "", err)
	}

	var all map[string]*models.WorkflowStats
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, persistence.NewStoreError("decode counters", "", err)
	}

	return all, nil
}

func (c *CounterStore) save(all map[string]*models.WorkflowStats) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return persistence.NewStoreError("encode counters", "", err)
	}

	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return persistence.NewStoreError("write counters", "", err)
	}

	return nil
}
