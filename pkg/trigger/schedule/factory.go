package schedule

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paullozen/autofx/pkg/trigger"
)

var ErrConfigNil = errors.New("config cannot be nil")

func NewFactory() trigger.Factory {
	return &Factory{}
}

type Factory struct{}

func (f *Factory) ID() string {
	return "schedule"
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (trigger.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	t, err := NewTrigger(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule trigger: %w", err)
	}

	return t, nil
}
