// Package events defines the message kinds exchanged with the backend supervisor.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Channel topics.
const CommandTopic = "autofx.commands" // orchestrator -> supervisor
const EventTopic = "autofx.events"     // supervisor -> orchestrator

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Outbound commands.
	ExecuteStageCommand EventType = "stage.execute"
	SubmitInputCommand  EventType = "stage.input.submit"
	StopStageCommand    EventType = "stage.stop"

	// Inbound supervisor events.
	ConnectedEvent         EventType = "supervisor.connected"
	ScriptOutputEvent      EventType = "stage.output"
	InputRequestedEvent    EventType = "stage.input.requested"
	ExecutionStartedEvent  EventType = "stage.execution.started"
	ExecutionFinishedEvent EventType = "stage.execution.finished"
	ExecutionErrorEvent    EventType = "stage.execution.error"
	InputAcknowledgedEvent EventType = "stage.input.acknowledged"
)

// Outcome is the terminal result a supervisor reports for a stage execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeStopped Outcome = "stopped"
	OutcomeFailure Outcome = "failure"
)

// Classification labels one line of stage output for rendering.
type Classification string

const (
	ClassInfo    Classification = "info"
	ClassSystem  Classification = "system"
	ClassSuccess Classification = "success"
	ClassError   Classification = "error"
	ClassInput   Classification = "input"
	ClassUser    Classification = "user"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// Commands (orchestrator -> supervisor)

// ExecuteStage asks the supervisor to start the external program ScriptRef
// resolves to, reporting back under StageID.
type ExecuteStage struct {
	BaseEvent

	StageID   string `json:"stage_id"`
	ScriptRef string `json:"script_ref"`
}

func (e ExecuteStage) GetType() EventType {
	return ExecuteStageCommand
}

func (e ExecuteStage) GetStageID() string {
	return e.StageID
}

func NewExecuteStage(stageID, scriptRef string) ExecuteStage {
	return ExecuteStage{
		BaseEvent: NewBaseEvent(ExecuteStageCommand),
		StageID:   stageID,
		ScriptRef: scriptRef,
	}
}

// SubmitInput answers an open input request of a running stage.
type SubmitInput struct {
	BaseEvent

	StageID string `json:"stage_id"`
	Input   string `json:"input"`
}

func (e SubmitInput) GetType() EventType {
	return SubmitInputCommand
}

func (e SubmitInput) GetStageID() string {
	return e.StageID
}

func NewSubmitInput(stageID, input string) SubmitInput {
	return SubmitInput{
		BaseEvent: NewBaseEvent(SubmitInputCommand),
		StageID:   stageID,
		Input:     input,
	}
}

// StopStage asks the supervisor to cancel a running stage.
type StopStage struct {
	BaseEvent

	StageID string `json:"stage_id"`
}

func (e StopStage) GetType() EventType {
	return StopStageCommand
}

func (e StopStage) GetStageID() string {
	return e.StageID
}

func NewStopStage(stageID string) StopStage {
	return StopStage{
		BaseEvent: NewBaseEvent(StopStageCommand),
		StageID:   stageID,
	}
}

// Supervisor events (supervisor -> orchestrator)

// Connected announces the supervisor is ready to take commands.
type Connected struct {
	BaseEvent

	Message string `json:"message,omitempty"`
}

func (e Connected) GetType() EventType {
	return ConnectedEvent
}

func NewConnected(message string) Connected {
	return Connected{
		BaseEvent: NewBaseEvent(ConnectedEvent),
		Message:   message,
	}
}

// ScriptOutput carries one classified line emitted by a running stage.
type ScriptOutput struct {
	BaseEvent

	StageID        string         `json:"stage_id"`
	Output         string         `json:"output"`
	Classification Classification `json:"classification"`
}

func (e ScriptOutput) GetType() EventType {
	return ScriptOutputEvent
}

func NewScriptOutput(stageID, output string, classification Classification) ScriptOutput {
	return ScriptOutput{
		BaseEvent:      NewBaseEvent(ScriptOutputEvent),
		StageID:        stageID,
		Output:         output,
		Classification: classification,
	}
}

// InputRequested reports a running stage is blocked on interactive input.
type InputRequested struct {
	BaseEvent

	StageID string `json:"stage_id"`
	Prompt  string `json:"prompt"`
}

func (e InputRequested) GetType() EventType {
	return InputRequestedEvent
}

func NewInputRequested(stageID, prompt string) InputRequested {
	return InputRequested{
		BaseEvent: NewBaseEvent(InputRequestedEvent),
		StageID:   stageID,
		Prompt:    prompt,
	}
}

type ExecutionStarted struct {
	BaseEvent

	StageID string `json:"stage_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

func NewExecutionStarted(stageID string) ExecutionStarted {
	return ExecutionStarted{
		BaseEvent: NewBaseEvent(ExecutionStartedEvent),
		StageID:   stageID,
	}
}

// ExecutionFinished is the terminal event for one stage execution.
type ExecutionFinished struct {
	BaseEvent

	StageID string  `json:"stage_id"`
	Outcome Outcome `json:"outcome"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

func NewExecutionFinished(stageID string, outcome Outcome) ExecutionFinished {
	return ExecutionFinished{
		BaseEvent: NewBaseEvent(ExecutionFinishedEvent),
		StageID:   stageID,
		Outcome:   outcome,
	}
}

// ExecutionError reports a stage failure with detail. Supervisors may follow
// it with an ExecutionFinished(failure); both map to the error status.
type ExecutionError struct {
	BaseEvent

	StageID string `json:"stage_id"`
	Error   string `json:"error"`
}

func (e ExecutionError) GetType() EventType {
	return ExecutionErrorEvent
}

func NewExecutionError(stageID, errorMessage string) ExecutionError {
	return ExecutionError{
		BaseEvent: NewBaseEvent(ExecutionErrorEvent),
		StageID:   stageID,
		Error:     errorMessage,
	}
}

// InputAcknowledged echoes input the supervisor delivered to a stage.
type InputAcknowledged struct {
	BaseEvent

	StageID string `json:"stage_id"`
	Input   string `json:"input"`
}

func (e InputAcknowledged) GetType() EventType {
	return InputAcknowledgedEvent
}

func NewInputAcknowledged(stageID, input string) InputAcknowledged {
	return InputAcknowledged{
		BaseEvent: NewBaseEvent(InputAcknowledgedEvent),
		StageID:   stageID,
		Input:     input,
	}
}
