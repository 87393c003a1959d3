package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fieldflow/fieldflow/pkg/condition"
	"github.com/fieldflow/fieldflow/pkg/engine"
	"github.com/fieldflow/fieldflow/pkg/eventbus"
	"github.com/fieldflow/fieldflow/pkg/events"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/otelhelper"
	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/fieldflow/fieldflow/pkg/registry"
)

// WorkerManager subscribes to record events and drives the engine
// dispatcher for each one. Record events fan out over every active
// workflow; manual triggers and schedule firings target one workflow.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	dispatcher  *engine.Dispatcher
	recordBus   eventbus.EventBus
	tracer      trace.Tracer
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	reg *registry.Registry,
	recordBus eventbus.EventBus,
	runBus eventbus.EventPublisher,
	logger *slog.Logger,
) *WorkerManager {
	evaluator := condition.NewEvaluator(logger)
	executor := engine.NewStepExecutor(reg, evaluator, logger)
	runner := engine.NewWorkflowRunner(executor, evaluator, store.RunHistory(), store.Counters(), runBus, logger)
	matcher := engine.NewTriggerMatcher(evaluator, store.RunHistory(), logger)

	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "worker-manager", "worker_id", id),
		persistence: store,
		dispatcher:  engine.NewDispatcher(matcher, runner, logger),
		recordBus:   recordBus,
	}
}

// Start registers the event handlers and blocks until SIGINT/SIGTERM or
// context cancellation.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	handlers := map[events.EventType]eventbus.EventHandler{
		events.RecordCreatedEvent: w.handleRecordChanged,
		events.RecordUpdatedEvent: w.handleRecordChanged,
		events.ManualTriggerEvent: w.handleManualTrigger,
		events.ScheduleFiredEvent: w.handleScheduleFired,
	}

	for eventType, handler := range handlers {
		if err := w.recordBus.Handle(eventType, handler); err != nil {
			return err
		}
	}

	if err := w.recordBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to record events", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}

var noopTracer = noop.NewTracerProvider().Tracer("")

// startSpan opens a tracing span when tracing is configured. The returned
// span is always safe to use.
func (w *WorkerManager) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := w.tracer
	if tracer == nil {
		tracer = noopTracer
	}

	return otelhelper.StartSpan(ctx, tracer, name, attrs...)
}

func (w *WorkerManager) handleRecordChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.RecordChanged)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RecordChanged")

		return nil
	}

	ctx, span := w.startSpan(ctx, "worker.record_changed",
		attribute.String(otelhelper.RecordIDKey, changed.RecordID),
		attribute.String(otelhelper.RecordTypeKey, changed.RecordType),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With(
		"record_id", changed.RecordID,
		"record_type", changed.RecordType,
		"event_id", changed.ID,
	)
	logger.InfoContext(ctx, "Processing record change")

	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workflows", "error", err)

		return err
	}

	executionCtx := models.ExecutionContext{
		TriggerType:  changed.TriggerType(),
		RecordID:     changed.RecordID,
		RecordType:   changed.RecordType,
		RecordData:   changed.RecordData,
		PreviousData: changed.PreviousData,
		TriggeredBy:  changed.UserID,
	}

	runs, err := w.dispatcher.Dispatch(ctx, workflows, executionCtx)
	if err != nil {
		logger.ErrorContext(ctx, "Dispatch failed", "error", err, "runs", len(runs))
		otelhelper.SetError(span, err)

		return err
	}

	logger.InfoContext(ctx, "Record change dispatched", "runs", len(runs))

	return nil
}

func (w *WorkerManager) handleManualTrigger(ctx context.Context, event any) error {
	trigger, ok := event.(*events.ManualTrigger)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ManualTrigger")

		return nil
	}

	ctx, span := w.startSpan(ctx, "worker.manual_trigger",
		attribute.String(otelhelper.WorkflowIDKey, trigger.WorkflowID),
		attribute.String(otelhelper.RecordIDKey, trigger.RecordID),
	)
	defer span.End()

	logger := w.logger.With(
		"workflow_id", trigger.WorkflowID,
		"record_id", trigger.RecordID,
		"user_id", trigger.UserID,
	)
	logger.InfoContext(ctx, "Processing manual trigger")

	workflow, err := w.persistence.WorkflowByID(ctx, trigger.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workflow", "error", err)

		return err
	}

	executionCtx := models.ExecutionContext{
		TriggerType: models.TriggerManual,
		RecordID:    trigger.RecordID,
		RecordType:  trigger.RecordType,
		RecordData:  trigger.RecordData,
		TriggeredBy: &trigger.UserID,
	}

	runs, err := w.dispatcher.Dispatch(ctx, []*models.Workflow{workflow}, executionCtx)
	if err != nil {
		logger.ErrorContext(ctx, "Dispatch failed", "error", err)
		otelhelper.SetError(span, err)

		return err
	}

	if len(runs) == 0 {
		logger.WarnContext(ctx, "Manual trigger matched no workflow")
	}

	return nil
}

func (w *WorkerManager) handleScheduleFired(ctx context.Context, event any) error {
	fired, ok := event.(*events.ScheduleFired)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ScheduleFired")

		return nil
	}

	ctx, span := w.startSpan(ctx, "worker.schedule_fired",
		attribute.String(otelhelper.WorkflowIDKey, fired.WorkflowID),
	)
	defer span.End()

	logger := w.logger.With("workflow_id", fired.WorkflowID)
	logger.InfoContext(ctx, "Processing schedule firing")

	workflow, err := w.persistence.WorkflowByID(ctx, fired.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workflow", "error", err)

		return err
	}

	executionCtx := models.ExecutionContext{
		TriggerType: models.TriggerScheduled,
		Metadata: map[string]any{
			"cron_expression": fired.CronExpression,
			"fired_at":        fired.FiredAt,
		},
	}

	if _, err := w.dispatcher.Dispatch(ctx, []*models.Workflow{workflow}, executionCtx); err != nil {
		logger.ErrorContext(ctx, "Dispatch failed", "error", err)
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}
