// Package schedule provides a cron-based trigger for unattended pipeline runs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paullozen/autofx/pkg/trigger"
)

type Trigger struct {
	Name     string
	CronExpr string
	Enabled  bool

	cron     *cron.Cron
	callback trigger.Callback
	logger   *slog.Logger
}

func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	name, _ := config["name"].(string)
	cronExpr, _ := config["cron"].(string)

	t := &Trigger{
		Name:     name,
		CronExpr: cronExpr,
		Enabled:  true,
		logger: logger.With(
			"module", "schedule_trigger",
			"name", name,
			"cron", cronExpr,
		),
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Trigger) Validate() error {
	if t.Name == "" {
		return errors.New("schedule trigger name is required")
	}

	if t.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback trigger.Callback) error {
	if !t.Enabled {
		t.logger.InfoContext(ctx, "Schedule trigger is disabled")

		return nil
	}

	t.logger.InfoContext(ctx, "Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := t.cron.AddFunc(t.CronExpr, t.fire); err != nil {
		return fmt.Errorf("failed to add cron job for trigger %s: %w", t.Name, err)
	}

	t.cron.Start()

	return nil
}

func (t *Trigger) fire() {
	t.logger.Info("Cron fired, requesting pipeline run")

	data := map[string]any{
		"trigger":   t.Name,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := t.callback(context.Background(), data); err != nil {
			t.logger.Error("Pipeline run request failed", "error", err)
		}
	}()
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping schedule trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
