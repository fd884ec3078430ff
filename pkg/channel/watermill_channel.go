package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/paullozen/autofx/pkg/events"
	"github.com/paullozen/autofx/pkg/log"
)

// WatermillChannel carries commands to the supervisor on the command topic and
// consumes supervisor events from the event topic. A single goroutine drains
// the inbound stream, so handlers observe events in arrival order.
type WatermillChannel struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	handlersMu sync.RWMutex
	handlers   map[events.EventType]EventHandler

	connected    atomic.Bool
	hookMu       sync.Mutex
	onDisconnect func()

	logger *slog.Logger
}

// NewWatermillChannel wires a channel over an existing publisher/subscriber
// pair. The channel reports not connected until the supervisor announces
// itself with a connected event.
func NewWatermillChannel(publisher message.Publisher, subscriber message.Subscriber) *WatermillChannel {
	return &WatermillChannel{
		publisher:  publisher,
		subscriber: subscriber,
		handlers:   make(map[events.EventType]EventHandler),
		logger:     log.WithModule("channel"),
	}
}

// Send publishes one command envelope. It fails immediately with
// ErrNotConnected while no supervisor is listening.
func (c *WatermillChannel) Send(ctx context.Context, command Event) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	msg := message.NewMessage("msg-"+c.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(command.GetType()))

	if addressed, ok := command.(StageCommand); ok {
		msg.Metadata.Set(events.EventMetadataKey, addressed.GetStageID())
	}

	if err := c.publisher.Publish(events.CommandTopic, msg); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	return nil
}

// Handle registers the handler for one inbound event type. Registration must
// finish before Subscribe; a second handler for the same type replaces the
// first.
func (c *WatermillChannel) Handle(eventType events.EventType, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for event type %q", eventType)
	}

	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[eventType] = handler

	return nil
}

// Subscribe opens the inbound stream and starts the dispatch goroutine.
func (c *WatermillChannel) Subscribe(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, events.EventTopic)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	go c.processMessages(ctx, messages)

	return nil
}

func (c *WatermillChannel) processMessages(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		event, err := c.decodeEvent(eventType, msg.Payload)
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to decode inbound event", "event_type", eventType, "error", err)
			msg.Ack()

			continue
		}

		if eventType == events.ConnectedEvent {
			c.connected.Store(true)
		}

		c.handlersMu.RLock()
		handler, ok := c.handlers[eventType]
		c.handlersMu.RUnlock()

		if !ok {
			msg.Ack()

			continue
		}

		if err := handler(msg.Context(), event); err != nil {
			c.logger.ErrorContext(ctx, "Event handler failed", "event_type", eventType, "error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}

	c.connected.Store(false)

	c.hookMu.Lock()
	hook := c.onDisconnect
	c.hookMu.Unlock()

	if hook != nil {
		hook()
	}
}

func (c *WatermillChannel) decodeEvent(eventType events.EventType, payload []byte) (any, error) {
	switch eventType {
	case events.ConnectedEvent:
		var event events.Connected
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal connected: %w", err)
		}

		return &event, nil
	case events.ScriptOutputEvent:
		var event events.ScriptOutput
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal script output: %w", err)
		}

		return &event, nil
	case events.InputRequestedEvent:
		var event events.InputRequested
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal input requested: %w", err)
		}

		return &event, nil
	case events.ExecutionStartedEvent:
		var event events.ExecutionStarted
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal execution started: %w", err)
		}

		return &event, nil
	case events.ExecutionFinishedEvent:
		var event events.ExecutionFinished
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal execution finished: %w", err)
		}

		return &event, nil
	case events.ExecutionErrorEvent:
		var event events.ExecutionError
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal execution error: %w", err)
		}

		return &event, nil
	case events.InputAcknowledgedEvent:
		var event events.InputAcknowledged
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal input acknowledged: %w", err)
		}

		return &event, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// Connected reports whether a supervisor has announced itself and the inbound
// stream is still live.
func (c *WatermillChannel) Connected() bool {
	return c.connected.Load()
}

// OnDisconnect registers a hook invoked once when the inbound stream ends.
func (c *WatermillChannel) OnDisconnect(hook func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.onDisconnect = hook
}

// Close tears down both halves of the connection.
func (c *WatermillChannel) Close() error {
	c.connected.Store(false)

	if err := c.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}

	if err := c.subscriber.Close(); err != nil {
		return fmt.Errorf("close subscriber: %w", err)
	}

	return nil
}

// GenerateID returns a fresh identifier for correlating commands and logs.
func (c *WatermillChannel) GenerateID() string {
	return watermill.NewULID()
}
