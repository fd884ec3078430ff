package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/cmd"
	"github.com/paullozen/autofx/pkg/config"
	"github.com/paullozen/autofx/pkg/log"
	"github.com/paullozen/autofx/pkg/orchestrator"
	"github.com/paullozen/autofx/pkg/otelhelper"
	"github.com/paullozen/autofx/pkg/stage"
	"github.com/paullozen/autofx/pkg/trigger"
	"github.com/paullozen/autofx/pkg/trigger/queue"
	"github.com/paullozen/autofx/pkg/trigger/schedule"
)

const apiShutdownTimeout = 5 * time.Second

// Daemon wires the event channel, orchestrator, dashboard API and automation
// triggers into one process.
type Daemon struct {
	id           string
	config       config.DaemonConfig
	channel      channel.EventChannel
	orchestrator *orchestrator.Orchestrator
	app          *fiber.App
	triggers     []trigger.Trigger
	logger       *slog.Logger
}

func NewDaemon(cfg config.DaemonConfig, logger *slog.Logger) *Daemon {
	id := "autofx-" + uuid.New().String()[:8]

	return &Daemon{
		id:     id,
		config: cfg,
		logger: logger.With("daemon_id", id),
	}
}

// Start brings the daemon up and blocks until a shutdown signal arrives or
// the context is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	dCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.InfoContext(dCtx, "Starting autofx daemon")

	if d.config.Tracing {
		tp, err := otelhelper.InitTracer(dCtx, "autofx")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(dCtx)); err != nil {
				d.logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	d.channel = cmd.NewEventChannel(d.config.EventBus, d.logger)

	catalog := stage.Default()

	d.orchestrator = orchestrator.New(catalog, d.channel)
	if err := d.orchestrator.Start(dCtx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	d.app = NewAPI(d.logger, d.orchestrator, catalog).App()

	go func() {
		if err := d.app.Listen(":" + strconv.Itoa(d.config.APIPort)); err != nil {
			d.logger.Error("Dashboard API server stopped", "error", err)
			cancel()
		}
	}()

	d.logger.InfoContext(dCtx, "Dashboard API listening", "port", d.config.APIPort)

	if err := d.startTriggers(dCtx); err != nil {
		d.stop(dCtx)

		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		d.logger.InfoContext(dCtx, "Received signal, shutting down...", "signal", sig.String())
	case <-dCtx.Done():
		d.logger.InfoContext(dCtx, "Context cancelled, shutting down...")
	}

	d.stop(context.WithoutCancel(dCtx))

	return nil
}

// startTriggers creates and starts every trigger declared in the daemon
// configuration. Each fires the same pipeline-run callback a human would.
func (d *Daemon) startTriggers(ctx context.Context) error {
	factories := make(map[string]trigger.Factory)
	for _, factory := range []trigger.Factory{schedule.NewFactory(), queue.NewFactory()} {
		factories[factory.ID()] = factory
	}

	for _, tc := range d.config.Triggers {
		factory, ok := factories[tc.Type]
		if !ok {
			return fmt.Errorf("unknown trigger type %q", tc.Type)
		}

		triggerConfig := map[string]any{"name": tc.Name}
		for k, v := range tc.Configuration {
			triggerConfig[k] = v
		}

		trg, err := factory.Create(triggerConfig, log.WithModule("trigger"))
		if err != nil {
			return fmt.Errorf("failed to create trigger %s: %w", tc.Name, err)
		}

		if err := trg.Start(ctx, d.runPipeline); err != nil {
			return fmt.Errorf("failed to start trigger %s: %w", tc.Name, err)
		}

		d.triggers = append(d.triggers, trg)
		d.logger.InfoContext(ctx, "Started trigger", "trigger_type", tc.Type, "trigger_name", tc.Name)
	}

	return nil
}

// runPipeline is the trigger callback. A run rejected because one is already
// in flight is skipped, never queued.
func (d *Daemon) runPipeline(ctx context.Context, data map[string]any) error {
	runID := "run-" + uuid.New().String()[:8]
	logger := d.logger.With("run_id", runID, "trigger", data["trigger"])

	logger.InfoContext(ctx, "Trigger requested full pipeline run")

	err := d.orchestrator.RunFullPipeline(ctx)

	switch {
	case errors.Is(err, orchestrator.ErrPipelineRunning):
		logger.InfoContext(ctx, "Pipeline already running, skipping triggered run")

		return nil
	case err != nil:
		logger.ErrorContext(ctx, "Triggered pipeline run failed", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Triggered pipeline run completed")

	return nil
}

// stop unwinds in reverse start order: triggers, API server, event channel.
func (d *Daemon) stop(ctx context.Context) {
	for _, trg := range d.triggers {
		if err := trg.Stop(ctx); err != nil {
			d.logger.ErrorContext(ctx, "Failed to stop trigger", "error", err)
		}
	}

	if d.app != nil {
		if err := d.app.ShutdownWithTimeout(apiShutdownTimeout); err != nil {
			d.logger.ErrorContext(ctx, "Failed to shutdown API server", "error", err)
		}
	}

	if d.channel != nil {
		if err := d.channel.Close(); err != nil {
			d.logger.ErrorContext(ctx, "Failed to close event channel", "error", err)
		}
	}

	d.logger.InfoContext(ctx, "Daemon stopped")
}
