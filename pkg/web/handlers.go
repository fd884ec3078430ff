// Package web provides the REST endpoints the dashboard frontend drives the
// pipeline through.
package web

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/paullozen/autofx/pkg/orchestrator"
	"github.com/paullozen/autofx/pkg/stage"
)

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	catalog      *stage.Catalog
	validator    *validator.Validate
}

func NewAPIHandlers(
	orch *orchestrator.Orchestrator,
	catalog *stage.Catalog,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orch,
		catalog:      catalog,
		validator:    validator,
	}
}

// ListStages returns the catalog merged with live execution state. The
// optional group query narrows the listing to one stage group.
func (h *APIHandlers) ListStages(c fiber.Ctx) error {
	var descriptors []stage.Descriptor

	switch group := c.Query("group"); group {
	case "":
		descriptors = h.catalog.All()
	case string(stage.GroupPipeline), string(stage.GroupUtility):
		descriptors = h.catalog.List(stage.Group(group))
	default:
		return badRequest(c, "Unknown stage group: "+group)
	}

	stages := make([]StageResponse, 0, len(descriptors))
	for _, desc := range descriptors {
		stages = append(stages, NewStageResponse(desc, h.orchestrator.StageState(desc.ID)))
	}

	return c.JSON(fiber.Map{
		"stages":      stages,
		"total_count": len(stages),
	})
}

func (h *APIHandlers) GetStage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Stage ID is required")
	}

	desc, ok := h.catalog.Get(id)
	if !ok {
		return notFound(c, "Stage not found")
	}

	return c.JSON(NewStageResponse(desc, h.orchestrator.StageState(id)))
}

// ExecuteStage asks the supervisor to start one stage. The work happens out
// of band, so the response is only an acknowledgment that the command went
// out.
func (h *APIHandlers) ExecuteStage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Stage ID is required")
	}

	if err := h.orchestrator.ExecuteStage(c.Context(), id); err != nil {
		return handleOrchestratorError(c, err)
	}

	desc, _ := h.catalog.Get(id)

	return c.Status(fiber.StatusAccepted).JSON(NewStageResponse(desc, h.orchestrator.StageState(id)))
}

// StopStage cancels one stage. The stage flips to stopped locally before the
// supervisor confirms anything.
func (h *APIHandlers) StopStage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Stage ID is required")
	}

	if err := h.orchestrator.Select(id); err != nil {
		return handleOrchestratorError(c, err)
	}

	if err := h.orchestrator.StopStage(c.Context()); err != nil {
		return handleOrchestratorError(c, err)
	}

	desc, _ := h.catalog.Get(id)

	return c.Status(fiber.StatusAccepted).JSON(NewStageResponse(desc, h.orchestrator.StageState(id)))
}

// RunPipeline starts a full sequential pipeline run in the background. A
// second request while one run is in flight gets a conflict.
func (h *APIHandlers) RunPipeline(c fiber.Ctx) error {
	if !h.orchestrator.Connected() {
		return serviceUnavailable(c, "backend supervisor is not connected")
	}

	if h.orchestrator.AutoRunning() {
		return conflict(c, "a full pipeline run is already in progress")
	}

	// The run outlives this request, so it cannot hold the request context.
	// Halts and completions land in the log book, which is all the dashboard
	// sees anyway.
	go func() {
		_ = h.orchestrator.RunFullPipeline(context.Background())
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "pipeline run started",
	})
}

// Shutdown cancels every running stage at once.
func (h *APIHandlers) Shutdown(c fiber.Ctx) error {
	if err := h.orchestrator.ShutdownAll(c.Context()); err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "stop requested for all running stages",
	})
}

// SubmitInput answers the pending interactive prompt.
func (h *APIHandlers) SubmitInput(c fiber.Ctx) error {
	var req SubmitInputRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.orchestrator.SubmitInput(c.Context(), req.Input); err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetState returns the snapshot the dashboard polls between events.
func (h *APIHandlers) GetState(c fiber.Ctx) error {
	return c.JSON(StateResponse{
		Connected:     h.orchestrator.Connected(),
		AutoRunning:   h.orchestrator.AutoRunning(),
		SelectedStage: h.orchestrator.Selected(),
		Stages:        h.orchestrator.StageStates(),
	})
}

func (h *APIHandlers) GetLogs(c fiber.Ctx) error {
	entries := h.orchestrator.Logs()

	return c.JSON(fiber.Map{
		"logs":        entries,
		"total_count": len(entries),
	})
}

func (h *APIHandlers) ClearLogs(c fiber.Ctx) error {
	h.orchestrator.ClearLogs()

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetInputRequest(c fiber.Ctx) error {
	request, pending := h.orchestrator.PendingInput()
	if !pending {
		return c.JSON(InputRequestResponse{Pending: false})
	}

	return c.JSON(InputRequestResponse{
		Pending: true,
		StageID: request.StageID,
		Prompt:  request.Prompt,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	supervisor := "disconnected"
	if h.orchestrator.Connected() {
		supervisor = "connected"
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"message": "AutoFX dashboard API is up",
		"checkers": fiber.Map{
			"supervisor": supervisor,
		},
		"timestamp": time.Now().UTC(),
	})
}
