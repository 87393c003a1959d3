package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fieldflow/fieldflow/pkg/eventbus"
	"github.com/fieldflow/fieldflow/pkg/events"
	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/fieldflow/fieldflow/pkg/registry"
	"github.com/fieldflow/fieldflow/pkg/schedule"
)

const defaultRunsLimit = 50

type APIHandlers struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	evaluator   *schedule.Evaluator
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		evaluator:   schedule.NewEvaluator(),
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// Register mounts all API routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/trigger", h.TriggerWorkflow)
	w.Get("/:id/runs", h.GetWorkflowRuns)
	w.Get("/:id/stats", h.GetWorkflowStats)

	app.Get("/runs/:id", h.GetRun)
	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	if module := c.Query("module"); module != "" {
		filtered := make([]*models.Workflow, 0, len(workflows))

		for _, workflow := range workflows {
			if workflow.Module == module {
				filtered = append(filtered, workflow)
			}
		}

		workflows = filtered
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		Module:              req.Module,
		TriggerType:         req.TriggerType,
		TriggerConfig:       req.TriggerConfig,
		TriggerTiming:       req.TriggerTiming,
		WatchedFields:       req.WatchedFields,
		Conditions:          req.Conditions,
		Priority:            req.Priority,
		StopOnFirstMatch:    req.StopOnFirstMatch,
		MaxExecutionsPerDay: req.MaxExecutionsPerDay,
		RunOncePerRecord:    req.RunOncePerRecord,
		AllowManualTrigger:  req.AllowManualTrigger,
		DelaySeconds:        req.DelaySeconds,
		ScheduleCron:        req.ScheduleCron,
		Active:              req.Active,
		Steps:               req.Steps,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := h.validateWorkflow(workflow); err != nil {
		return handleError(c, err)
	}

	if err := h.persistence.SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	applyUpdate(workflow, &req)
	workflow.UpdatedAt = time.Now().UTC()

	if err := h.validateWorkflow(workflow); err != nil {
		return handleError(c, err)
	}

	if err := h.persistence.SaveWorkflow(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.persistence.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerWorkflow publishes a manual trigger event for one record. The
// worker picks it up like any other record event; the response is 202
// because the run happens asynchronously.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if !workflow.AllowManualTrigger {
		return conflict(c, "workflow does not allow manual triggering")
	}

	var req ManualTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.ManualTrigger{
		BaseEvent: events.BaseEvent{
			ID:         h.eventBus.GenerateID(),
			Type:       events.ManualTriggerEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: workflow.ID,
		},
		RecordID:   req.RecordID,
		RecordType: req.RecordType,
		RecordData: req.RecordData,
		UserID:     req.UserID,
	}

	if err := h.eventBus.Publish(c.Context(), req.RecordID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": workflow.ID,
		"record_id":   req.RecordID,
		"status":      "queued",
	})
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.persistence.WorkflowByID(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	limit := defaultRunsLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	runs, err := h.persistence.RunHistory().RunsByWorkflow(c.Context(), id, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": id,
		"runs":        runs,
		"count":       len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.persistence.RunHistory().RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	id := c.Params("id")

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	stats, err := h.persistence.Counters().Stats(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if workflow.IsScheduled() && workflow.Active {
		if next, nextErr := h.evaluator.NextRunAt(workflow.ScheduleCron, time.Now().UTC()); nextErr == nil {
			stats.NextRunAt = &next
		}
	}

	return c.JSON(WorkflowStatsResponse{
		WorkflowStats: stats,
		SuccessRate:   stats.SuccessRate(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	storageErr := h.persistence.HealthCheck(c.Context())
	if storageErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	checkers := fiber.Map{
		"storage": errDetail(storageErr),
		"actions": len(h.registry.AvailableActions()),
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}

// validateWorkflow runs the model invariants, per-step action validation,
// and cron validation for scheduled workflows.
func (h *APIHandlers) validateWorkflow(workflow *models.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return err
	}

	for _, step := range workflow.Steps {
		if err := h.registry.ValidateStep(step); err != nil {
			return err
		}
	}

	if workflow.IsScheduled() {
		if err := h.evaluator.Validate(workflow.ScheduleCron); err != nil {
			return err
		}
	}

	return nil
}

func applyUpdate(workflow *models.Workflow, req *UpdateWorkflowRequest) {
	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.TriggerConfig != nil {
		workflow.TriggerConfig = req.TriggerConfig
	}

	if req.TriggerTiming != nil {
		workflow.TriggerTiming = *req.TriggerTiming
	}

	if req.WatchedFields != nil {
		workflow.WatchedFields = req.WatchedFields
	}

	if req.Conditions != nil {
		workflow.Conditions = req.Conditions
	}

	if req.Priority != nil {
		workflow.Priority = *req.Priority
	}

	if req.StopOnFirstMatch != nil {
		workflow.StopOnFirstMatch = *req.StopOnFirstMatch
	}

	if req.MaxExecutionsPerDay != nil {
		workflow.MaxExecutionsPerDay = req.MaxExecutionsPerDay
	}

	if req.RunOncePerRecord != nil {
		workflow.RunOncePerRecord = *req.RunOncePerRecord
	}

	if req.AllowManualTrigger != nil {
		workflow.AllowManualTrigger = *req.AllowManualTrigger
	}

	if req.DelaySeconds != nil {
		workflow.DelaySeconds = *req.DelaySeconds
	}

	if req.ScheduleCron != nil {
		workflow.ScheduleCron = *req.ScheduleCron
	}

	if req.Active != nil {
		workflow.Active = *req.Active
	}

	if req.Steps != nil {
		workflow.Steps = req.Steps
	}
}

func errDetail(err error) string {
	if err != nil {
		return err.Error()
	}

	return "ok"
}
