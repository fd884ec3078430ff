// Package channel provides the single bidirectional event connection between
// the dashboard orchestrator and the backend supervisor.
package channel

import (
	"context"
	"errors"

	"github.com/paullozen/autofx/pkg/events"
)

// ErrNotConnected is returned by Send while no supervisor has announced itself
// on the inbound topic. Commands never block waiting for a connection.
var ErrNotConnected = errors.New("channel: supervisor not connected")

// Event is any protocol message with a named kind.
type Event interface {
	GetType() events.EventType
}

// StageCommand is an outbound message addressed to one stage. The stage id
// doubles as the message key, so partitioned transports keep per-stage order.
type StageCommand interface {
	Event
	GetStageID() string
}

// EventHandler consumes one decoded inbound event. Handlers run sequentially
// on the subscription goroutine, in arrival order.
type EventHandler func(ctx context.Context, event any) error

// CommandSender is the outbound half of the connection.
type CommandSender interface {
	Send(ctx context.Context, command Event) error
}

// EventSubscriber is the inbound half: register handlers, then subscribe once.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventChannel is the orchestrator's view of the supervisor connection.
type EventChannel interface {
	CommandSender
	EventSubscriber
	Connected() bool
	OnDisconnect(hook func())
	Close() error
	GenerateID() string
}
