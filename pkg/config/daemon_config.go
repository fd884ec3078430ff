// Package config provides configuration loading for the autofx daemon.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML file leaves a field unset.
const (
	DefaultAPIPort  = 8091
	DefaultEventBus = "gochannel"
	DefaultLogLevel = "info"
)

// DaemonConfig represents the structure of the autofx.yaml file.
type DaemonConfig struct {
	APIPort  int             `yaml:"api_port"  validate:"required,gt=0,lte=65535"`
	EventBus string          `yaml:"event_bus" validate:"required,oneof=gochannel kafka"`
	LogLevel string          `yaml:"log_level" validate:"required,oneof=debug info warn error"`
	Tracing  bool            `yaml:"tracing"`
	Triggers []TriggerConfig `yaml:"triggers"  validate:"dive"`
}

// TriggerConfig declares one automation trigger started with the daemon.
type TriggerConfig struct {
	Type          string         `yaml:"type" validate:"required"`
	Name          string         `yaml:"name" validate:"required"`
	Configuration map[string]any `yaml:"configuration"`
}

// LoadDaemonConfig loads daemon configuration from a YAML file.
func LoadDaemonConfig(filepath string) (DaemonConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var config DaemonConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return DaemonConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if config.APIPort == 0 {
		config.APIPort = DefaultAPIPort
	}

	if config.EventBus == "" {
		config.EventBus = DefaultEventBus
	}

	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	return config, nil
}

// LoadDaemonConfigOrDefault attempts to load daemon config from file, falling
// back to a default configuration if the file doesn't exist.
func LoadDaemonConfigOrDefault(filepath string) DaemonConfig {
	config, err := LoadDaemonConfig(filepath)
	if err != nil {
		return DaemonConfig{
			APIPort:  DefaultAPIPort,
			EventBus: DefaultEventBus,
			LogLevel: DefaultLogLevel,
		}
	}

	return config
}

// ValidateDaemonConfig validates the daemon configuration.
func ValidateDaemonConfig(config DaemonConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid daemon config: %w", err)
	}

	for i, trigger := range config.Triggers {
		switch trigger.Type {
		case "schedule":
			if err := validateScheduleTrigger(trigger, i); err != nil {
				return err
			}
		case "queue":
			if err := validateQueueTrigger(trigger, i); err != nil {
				return err
			}
		default:
			return fmt.Errorf("triggers[%d]: unknown trigger type '%s'", i, trigger.Type)
		}
	}

	return nil
}

func validateScheduleTrigger(trigger TriggerConfig, index int) error {
	cronExpr, ok := trigger.Configuration["cron"].(string)
	if !ok || cronExpr == "" {
		return fmt.Errorf("triggers[%d]: schedule trigger requires 'cron' configuration", index)
	}

	return nil
}

func validateQueueTrigger(trigger TriggerConfig, index int) error {
	queue, ok := trigger.Configuration["queue"].(string)
	if !ok || queue == "" {
		return fmt.Errorf("triggers[%d]: queue trigger requires 'queue' configuration", index)
	}

	return nil
}
