package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/orchestrator"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func serviceUnavailable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(503).
		WithInstance(c.Path()).
		WithType("supervisor_unavailable").
		WithDetail(detail)

	return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleOrchestratorError maps orchestrator failures onto problem responses.
func handleOrchestratorError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownStage):
		return notFound(c, "stage not found")

	case errors.Is(err, orchestrator.ErrPipelineRunning):
		return conflict(c, "a full pipeline run is already in progress")

	case errors.Is(err, orchestrator.ErrNoStageSelected):
		return badRequest(c, "no stage selected")

	case errors.Is(err, channel.ErrNotConnected):
		return serviceUnavailable(c, "backend supervisor is not connected")

	default:
		return internalError(c, err)
	}
}
