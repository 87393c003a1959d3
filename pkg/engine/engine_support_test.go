package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldflow/fieldflow/pkg/condition"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
	"github.com/fieldflow/fieldflow/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedAction runs a caller-supplied function, so tests can script
// failures, variable writes, and call counting per step.
type scriptedAction struct {
	fn func(ctx context.Context, executionCtx models.ExecutionContext) (map[string]any, error)
}

func (a *scriptedAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, _ *slog.Logger) (map[string]any, error) {
	return a.fn(ctx, executionCtx)
}

type scriptedFactory struct {
	id string
	fn func(ctx context.Context, executionCtx models.ExecutionContext) (map[string]any, error)
}

func (f *scriptedFactory) ID() string             { return f.id }
func (f *scriptedFactory) Name() string           { return f.id }
func (f *scriptedFactory) Description() string    { return "scripted test action" }
func (f *scriptedFactory) Schema() map[string]any { return nil }
func (f *scriptedFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &scriptedAction{fn: f.fn}, nil
}

func newTestRegistry(factories ...protocol.ActionFactory) *registry.Registry {
	reg := registry.NewRegistry(testLogger())
	for _, factory := range factories {
		reg.RegisterAction(factory)
	}

	return reg
}

// stubHistory is an in-memory RunHistory with scriptable gate answers.
type stubHistory struct {
	mu         sync.Mutex
	runs       []*models.ExecutionRun
	hasRun     bool
	countToday int
}

func (s *stubHistory) Record(_ context.Context, run *models.ExecutionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)

	return nil
}

func (s *stubHistory) HasSuccessfulRun(_ context.Context, _, _ string) (bool, error) {
	return s.hasRun, nil
}

func (s *stubHistory) CountExecutionsToday(_ context.Context, _ string, _ time.Time) (int, error) {
	return s.countToday, nil
}

func (s *stubHistory) RunsByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*models.ExecutionRun, 0)

	for i := len(s.runs) - 1; i >= 0 && (limit <= 0 || len(matched) < limit); i-- {
		if s.runs[i].WorkflowID == workflowID {
			matched = append(matched, s.runs[i])
		}
	}

	return matched, nil
}

func (s *stubHistory) RunByID(_ context.Context, runID string) (*models.ExecutionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == runID {
			return run, nil
		}
	}

	return nil, nil
}

// stubCounters records IncrementRun invocations.
type stubCounters struct {
	mu         sync.Mutex
	increments int
	succeeded  int
	failed     int
}

func (s *stubCounters) IncrementRun(_ context.Context, _ string, succeeded bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.increments++
	if succeeded {
		s.succeeded++
	} else {
		s.failed++
	}

	return nil
}

func (s *stubCounters) Stats(_ context.Context, workflowID string) (*models.WorkflowStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &models.WorkflowStats{
		WorkflowID:     workflowID,
		ExecutionCount: int64(s.increments),
		SuccessCount:   int64(s.succeeded),
		FailureCount:   int64(s.failed),
	}, nil
}

func newTestRunner(reg *registry.Registry, history *stubHistory, counters *stubCounters) *WorkflowRunner {
	evaluator := condition.NewEvaluator(testLogger())
	executor := NewStepExecutor(reg, evaluator, testLogger())

	return NewWorkflowRunner(executor, evaluator, history, counters, nil, testLogger())
}

func updateContext(recordData, previousData map[string]any) models.ExecutionContext {
	return models.ExecutionContext{
		ID:           "exec-test",
		TriggerType:  models.TriggerRecordUpdated,
		RecordID:     "rec-1",
		RecordType:   "deal",
		RecordData:   recordData,
		PreviousData: previousData,
	}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
