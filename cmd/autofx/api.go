// Package main provides the AutoFX dashboard daemon.
package main

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/paullozen/autofx/pkg/orchestrator"
	"github.com/paullozen/autofx/pkg/stage"
	"github.com/paullozen/autofx/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	catalog      *stage.Catalog
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	orch *orchestrator.Orchestrator,
	catalog *stage.Catalog,
) *API {
	return &API{
		logger:       logger,
		orchestrator: orch,
		catalog:      catalog,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.catalog, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("AutoFX dashboard API")
	})

	s := app.Group("/stages")
	s.Get("/", handlers.ListStages)
	s.Get("/:id", handlers.GetStage)
	s.Post("/:id/execute", handlers.ExecuteStage)
	s.Post("/:id/stop", handlers.StopStage)

	app.Post("/pipeline/run", handlers.RunPipeline)
	app.Post("/shutdown", handlers.Shutdown)

	app.Post("/input", handlers.SubmitInput)
	app.Get("/input-request", handlers.GetInputRequest)

	app.Get("/state", handlers.GetState)
	app.Get("/logs", handlers.GetLogs)
	app.Delete("/logs", handlers.ClearLogs)

	app.Get("/health", handlers.HealthCheck)

	return app
}
