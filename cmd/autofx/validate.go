package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/paullozen/autofx/pkg/config"
	"github.com/paullozen/autofx/pkg/log"
	"github.com/paullozen/autofx/pkg/stage"
)

// Static error variables for linter compliance.
var (
	ErrInvalidTriggers = errors.New("invalid triggers found")
	ErrInvalidStages   = errors.New("invalid stage descriptors found")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the daemon configuration and stage catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the autofx.yaml daemon configuration",
				Sources: cli.EnvVars("AUTOFX_CONFIG"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			validate := validator.New(validator.WithRequiredStructEnabled())

			logger := log.WithModule("autofx").With("action", "validate")

			cfg := config.DaemonConfig{
				APIPort:  config.DefaultAPIPort,
				EventBus: config.DefaultEventBus,
				LogLevel: config.DefaultLogLevel,
			}
			source := "(defaults)"

			if path := command.String("config"); path != "" {
				loaded, err := config.LoadDaemonConfig(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}

				cfg = loaded
				source = path
			}

			logger.InfoContext(ctx, "Validating daemon configuration", "source", source, "triggers", len(cfg.Triggers))

			_, _ = fmt.Fprintln(os.Stdout, "Daemon Configuration Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "========================================")
			_, _ = fmt.Fprintf(os.Stdout, "\nConfig: %s\n", source)

			if err := config.ValidateDaemonConfig(cfg); err != nil {
				_, _ = fmt.Fprintf(os.Stdout, "  ❌ INVALID: %v\n", err)

				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "  ✅ VALID\n")

			validTriggers := 0
			invalidTriggers := 0

			for _, trigger := range cfg.Triggers {
				_, _ = fmt.Fprintf(os.Stdout, "\n  Trigger: %s (%s)\n", trigger.Name, trigger.Type)

				if err := validateTrigger(validate, trigger); err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "    ❌ INVALID: %v\n", err)
					invalidTriggers++

					continue
				}

				_, _ = fmt.Fprintf(os.Stdout, "    ✅ VALID\n")
				validTriggers++
			}

			catalog := stage.Default()

			_, _ = fmt.Fprintln(os.Stdout, "\nStage Catalog Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "========================================")

			validStages := 0
			invalidStages := 0

			if len(catalog.Pipeline()) == 0 {
				_, _ = fmt.Fprintf(os.Stdout, "  ❌ INVALID: catalog has no pipeline stages\n")
				invalidStages++
			}

			for _, descriptor := range catalog.All() {
				_, _ = fmt.Fprintf(os.Stdout, "\n  Stage: %s (%s, %s)\n", descriptor.ID, descriptor.Name, descriptor.Group)

				err := validate.Struct(descriptor)
				if err != nil {
					var validationErrors validator.ValidationErrors
					if errors.As(err, &validationErrors) {
						_, _ = fmt.Fprintf(os.Stdout, "    ❌ INVALID: %v\n", validationErrors)
					} else {
						_, _ = fmt.Fprintf(os.Stdout, "    ❌ INVALID: %v\n", err)
					}
					invalidStages++

					continue
				}

				_, _ = fmt.Fprintf(os.Stdout, "    ✅ VALID\n")
				validStages++
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nValidation Summary:\n")
			_, _ = fmt.Fprintf(os.Stdout, "  Total triggers: %d\n", invalidTriggers+validTriggers)
			_, _ = fmt.Fprintf(os.Stdout, "  Valid triggers: %d\n", validTriggers)
			_, _ = fmt.Fprintf(os.Stdout, "  Invalid triggers: %d\n", invalidTriggers)
			_, _ = fmt.Fprintf(os.Stdout, "  Total stages: %d\n", invalidStages+validStages)
			_, _ = fmt.Fprintf(os.Stdout, "  Valid stages: %d\n", validStages)
			_, _ = fmt.Fprintf(os.Stdout, "  Invalid stages: %d\n", invalidStages)

			if invalidTriggers > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidTriggers, invalidTriggers)
			}

			if invalidStages > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidStages, invalidStages)
			}

			_, _ = fmt.Fprintln(os.Stdout, "Daemon configuration and stage catalog are valid! ✅")

			return nil
		},
	}
}

// validateTrigger checks one trigger declaration beyond the struct tags:
// schedule triggers must carry a parseable cron expression, queue triggers a
// queue name.
func validateTrigger(validate *validator.Validate, trigger config.TriggerConfig) error {
	if err := validate.Struct(trigger); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return validationErrors
		}

		return err
	}

	switch trigger.Type {
	case "schedule":
		cronExpr, _ := trigger.Configuration["cron"].(string)
		if cronExpr == "" {
			return errors.New("schedule trigger requires 'cron' configuration")
		}

		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
	case "queue":
		queue, _ := trigger.Configuration["queue"].(string)
		if queue == "" {
			return errors.New("queue trigger requires 'queue' configuration")
		}
	default:
		return fmt.Errorf("unknown trigger type '%s'", trigger.Type)
	}

	return nil
}
