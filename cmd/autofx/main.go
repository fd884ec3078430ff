package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/paullozen/autofx/pkg/config"
	"github.com/paullozen/autofx/pkg/log"
)

func main() {
	logger := log.WithModule("autofx")

	cmd := &cli.Command{
		Name:                  "autofx",
		Usage:                 "Pipeline control daemon for the autofx content dashboard",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the autofx.yaml daemon configuration",
				Sources: cli.EnvVars("AUTOFX_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "api-port",
				Aliases: []string{"p"},
				Usage:   "Port to run the dashboard API server on",
				Value:   config.DefaultAPIPort,
				Sources: cli.EnvVars("API_PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event channel transport to the supervisor (gochannel, kafka)",
				Value:   config.DefaultEventBus,
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   config.DefaultLogLevel,
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export orchestrator spans over OTLP/HTTP",
				Sources: cli.EnvVars("AUTOFX_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := resolveConfig(command)
			if err != nil {
				return err
			}

			if err := config.ValidateDaemonConfig(cfg); err != nil {
				return err
			}

			log.Setup(cfg.LogLevel)

			logger.InfoContext(ctx, "Initializing AutoFX daemon")

			return NewDaemon(cfg, logger).Start(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// resolveConfig layers explicit flags over the optional YAML file.
func resolveConfig(command *cli.Command) (config.DaemonConfig, error) {
	cfg := config.DaemonConfig{
		APIPort:  config.DefaultAPIPort,
		EventBus: config.DefaultEventBus,
		LogLevel: config.DefaultLogLevel,
	}

	if path := command.String("config"); path != "" {
		loaded, err := config.LoadDaemonConfig(path)
		if err != nil {
			return config.DaemonConfig{}, err
		}

		cfg = loaded
	}

	if command.IsSet("api-port") {
		cfg.APIPort = command.Int("api-port")
	}

	if command.IsSet("event-bus") {
		cfg.EventBus = command.String("event-bus")
	}

	if command.IsSet("log-level") {
		cfg.LogLevel = command.String("log-level")
	}

	if command.IsSet("tracing") {
		cfg.Tracing = command.Bool("tracing")
	}

	return cfg, nil
}
