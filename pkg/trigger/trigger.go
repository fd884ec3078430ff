// Package trigger defines the contract for automation triggers that start
// full-pipeline runs without a human at the dashboard.
package trigger

import (
	"context"
	"log/slog"
)

// Callback is invoked each time a trigger fires. The data map carries the
// trigger's descriptive payload (name, timestamp, source message fields).
type Callback func(ctx context.Context, data map[string]any) error

type Trigger interface {
	Start(ctx context.Context, callback Callback) error
	Stop(ctx context.Context) error
	Validate() error
}

type Factory interface {
	Create(config map[string]any, logger *slog.Logger) (Trigger, error)
	ID() string
}
