// Package testutil provides a scripted stand-in for the backend supervisor,
// used to exercise the orchestrator over a real channel transport.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/events"
)

// StageScript describes how the supervisor plays back one stage execution.
// The zero value finishes immediately with success and no output.
type StageScript struct {
	Output  []string
	Prompt  string
	Outcome events.Outcome
	Error   string
}

// Script builds a StageScript with the given overrides.
func Script(overrides ...func(*StageScript)) StageScript {
	script := StageScript{Outcome: events.OutcomeSuccess}

	for _, override := range overrides {
		override(&script)
	}

	return script
}

// WithOutput adds info lines emitted while the stage runs.
func WithOutput(lines ...string) func(*StageScript) {
	return func(s *StageScript) {
		s.Output = append(s.Output, lines...)
	}
}

// WithPrompt parks the stage on an input request after its output; the stage
// finishes only once the submitted input comes back over the command topic.
func WithPrompt(prompt string) func(*StageScript) {
	return func(s *StageScript) {
		s.Prompt = prompt
	}
}

// WithOutcome sets the terminal outcome reported for the stage.
func WithOutcome(outcome events.Outcome) func(*StageScript) {
	return func(s *StageScript) {
		s.Outcome = outcome
	}
}

// WithError makes the stage report an execution error followed by a failure
// terminal, the way real supervisors do on script crashes.
func WithError(message string) func(*StageScript) {
	return func(s *StageScript) {
		s.Error = message
	}
}

// Supervisor consumes orchestrator commands from the command topic and plays
// back the configured script for each stage. Commands are served one at a
// time, matching the single-conversation behavior of the real backend.
type Supervisor struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	scripts    map[string]StageScript

	mu      sync.Mutex
	pending map[string]StageScript
}

func NewSupervisor(publisher message.Publisher, subscriber message.Subscriber, scripts map[string]StageScript) *Supervisor {
	return &Supervisor{
		publisher:  publisher,
		subscriber: subscriber,
		scripts:    scripts,
		pending:    make(map[string]StageScript),
	}
}

// Start subscribes to the command topic and announces the supervisor on the
// event topic. Commands are served until ctx is cancelled or the transport
// closes.
func (s *Supervisor) Start(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, events.CommandTopic)
	if err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}

	go s.serve(messages)

	return s.emit(events.NewConnected("supervisor ready"))
}

func (s *Supervisor) serve(messages <-chan *message.Message) {
	for msg := range messages {
		s.dispatch(msg)
		msg.Ack()
	}
}

func (s *Supervisor) dispatch(msg *message.Message) {
	switch events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey)) {
	case events.ExecuteStageCommand:
		var cmd events.ExecuteStage
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			return
		}

		s.execute(cmd.StageID)
	case events.SubmitInputCommand:
		var cmd events.SubmitInput
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			return
		}

		s.deliver(cmd.StageID, cmd.Input)
	case events.StopStageCommand:
		var cmd events.StopStage
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			return
		}

		s.stop(cmd.StageID)
	}
}

func (s *Supervisor) execute(stageID string) {
	script := s.scripts[stageID]

	_ = s.emit(events.NewExecutionStarted(stageID))

	for _, line := range script.Output {
		_ = s.emit(events.NewScriptOutput(stageID, line, events.ClassInfo))
	}

	if script.Prompt != "" {
		_ = s.emit(events.NewInputRequested(stageID, script.Prompt))

		s.mu.Lock()
		s.pending[stageID] = script
		s.mu.Unlock()

		return
	}

	s.finish(stageID, script)
}

func (s *Supervisor) deliver(stageID, input string) {
	s.mu.Lock()
	script, ok := s.pending[stageID]
	delete(s.pending, stageID)
	s.mu.Unlock()

	if !ok {
		return
	}

	_ = s.emit(events.NewInputAcknowledged(stageID, input))
	s.finish(stageID, script)
}

func (s *Supervisor) stop(stageID string) {
	s.mu.Lock()
	delete(s.pending, stageID)
	s.mu.Unlock()

	_ = s.emit(events.NewExecutionFinished(stageID, events.OutcomeStopped))
}

func (s *Supervisor) finish(stageID string, script StageScript) {
	if script.Error != "" {
		_ = s.emit(events.NewExecutionError(stageID, script.Error))
		_ = s.emit(events.NewExecutionFinished(stageID, events.OutcomeFailure))

		return
	}

	outcome := script.Outcome
	if outcome == "" {
		outcome = events.OutcomeSuccess
	}

	_ = s.emit(events.NewExecutionFinished(stageID, outcome))
}

func (s *Supervisor) emit(event channel.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.GetType(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return s.publisher.Publish(events.EventTopic, msg)
}
