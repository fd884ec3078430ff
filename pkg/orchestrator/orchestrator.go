// Package orchestrator drives the content-production pipeline: it issues
// commands over the event channel, tracks per-stage execution state, collects
// the activity feed, and correlates terminal events back to awaited runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/events"
	"github.com/paullozen/autofx/pkg/log"
	"github.com/paullozen/autofx/pkg/otelhelper"
	"github.com/paullozen/autofx/pkg/stage"
)

const tracerName = "autofx-orchestrator"

var (
	// ErrPipelineRunning rejects a second full-pipeline run while one is in
	// flight. The caller gets no side effects, not even a log entry.
	ErrPipelineRunning = errors.New("pipeline run already in progress")

	// ErrPipelineHalted wraps the stage id and outcome that aborted a run.
	ErrPipelineHalted = errors.New("pipeline halted")

	// ErrNoStageSelected means StopStage was called before any stage was
	// focused.
	ErrNoStageSelected = errors.New("no stage selected")

	// ErrUnknownStage means the id is not in the catalog.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrSuperseded settles an awaited execution that was displaced by a
	// newer run of the same stage.
	ErrSuperseded = errors.New("await superseded by a newer execution")
)

// Orchestrator owns the execution store, the log book and the input gate.
// The UI layer only reads them through the snapshot accessors.
type Orchestrator struct {
	catalog *stage.Catalog
	channel channel.EventChannel

	store   *ExecutionStore
	logbook *LogBook
	gate    *InputGate
	awaits  *awaitRegistry

	selectedMu sync.RWMutex
	selected   string

	autoRunning atomic.Bool

	tracer trace.Tracer
	logger *slog.Logger
}

// New wires an orchestrator over an event channel. Call Start before issuing
// commands so inbound events reach the state containers.
func New(catalog *stage.Catalog, eventChannel channel.EventChannel) *Orchestrator {
	return &Orchestrator{
		catalog: catalog,
		channel: eventChannel,
		store:   NewExecutionStore(),
		logbook: NewLogBook(),
		gate:    NewInputGate(),
		awaits:  newAwaitRegistry(),
		tracer:  otel.Tracer(tracerName),
		logger:  log.WithModule("orchestrator"),
	}
}

// Start registers the protocol handlers and opens the inbound subscription.
func (o *Orchestrator) Start(ctx context.Context) error {
	handlers := map[events.EventType]channel.EventHandler{
		events.ConnectedEvent:         o.handleConnected,
		events.ScriptOutputEvent:      o.handleScriptOutput,
		events.InputRequestedEvent:    o.handleInputRequested,
		events.ExecutionStartedEvent:  o.handleExecutionStarted,
		events.ExecutionFinishedEvent: o.handleExecutionFinished,
		events.ExecutionErrorEvent:    o.handleExecutionError,
		events.InputAcknowledgedEvent: o.handleInputAcknowledged,
	}

	for eventType, handler := range handlers {
		if err := o.channel.Handle(eventType, handler); err != nil {
			return fmt.Errorf("register handler for %s: %w", eventType, err)
		}
	}

	o.channel.OnDisconnect(o.handleDisconnect)

	if err := o.channel.Subscribe(ctx); err != nil {
		o.logger.ErrorContext(ctx, "Failed to subscribe to event channel", "error", err)

		return err
	}

	o.logger.InfoContext(ctx, "Orchestrator started")

	return nil
}

// ExecuteStage sends the execute command for one stage and returns without
// waiting for the supervisor. With no supervisor connected it fails locally,
// leaving a single error entry in the log book and no channel traffic.
func (o *Orchestrator) ExecuteStage(ctx context.Context, stageID string) error {
	desc, ok := o.catalog.Get(stageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.execute_stage",
		attribute.String(otelhelper.StageIDKey, desc.ID),
		attribute.String(otelhelper.ScriptRefKey, desc.ScriptRef),
	)
	defer span.End()

	if !o.channel.Connected() {
		o.logbook.Append("Cannot execute "+desc.Name+": not connected to supervisor", events.ClassError)
		otelhelper.SetError(span, channel.ErrNotConnected)

		return channel.ErrNotConnected
	}

	o.setSelected(desc.ID)

	if err := o.channel.Send(ctx, events.NewExecuteStage(desc.ID, desc.ScriptRef)); err != nil {
		o.logbook.Append("Failed to send execute command for "+desc.Name, events.ClassError)
		otelhelper.SetError(span, err)

		return fmt.Errorf("send execute command: %w", err)
	}

	o.logger.InfoContext(ctx, "Execute command sent", "stage_id", desc.ID, "script_ref", desc.ScriptRef)

	return nil
}

// ExecuteStageAndAwait runs a stage and blocks until its terminal event
// arrives, the context ends, or a newer run of the same stage displaces this
// one. The waiter is registered before the command goes out and always
// removed on settlement, so repeated calls never leak observers.
func (o *Orchestrator) ExecuteStageAndAwait(ctx context.Context, stageID string) (events.Outcome, error) {
	waiter := o.awaits.register(stageID)
	defer o.awaits.deregister(stageID, waiter)

	if err := o.ExecuteStage(ctx, stageID); err != nil {
		return "", err
	}

	select {
	case result := <-waiter:
		if result.err != nil {
			return "", result.err
		}

		return result.outcome, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RunFullPipeline executes the ordered pipeline group sequentially, halting
// at the first stage that does not finish with success. Stages after the
// halt point are never started; completed stages are left as they are.
func (o *Orchestrator) RunFullPipeline(ctx context.Context) error {
	if !o.autoRunning.CompareAndSwap(false, true) {
		return ErrPipelineRunning
	}
	defer o.autoRunning.Store(false)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.run_full_pipeline")
	defer span.End()

	o.logbook.Append("Starting full pipeline run", events.ClassSystem)
	o.logger.InfoContext(ctx, "Starting full pipeline run")

	for _, desc := range o.catalog.Pipeline() {
		outcome, err := o.ExecuteStageAndAwait(ctx, desc.ID)
		if err != nil {
			o.logbook.Append("Pipeline halted at "+desc.Name, events.ClassError)
			otelhelper.SetError(span, err, attribute.String(otelhelper.StageIDKey, desc.ID))

			return fmt.Errorf("%w at stage %s: %w", ErrPipelineHalted, desc.ID, err)
		}

		if outcome != events.OutcomeSuccess {
			o.logbook.Append("Pipeline halted at "+desc.Name, events.ClassError)
			haltErr := fmt.Errorf("%w at stage %s: outcome %s", ErrPipelineHalted, desc.ID, outcome)
			otelhelper.SetError(span, haltErr, attribute.String(otelhelper.OutcomeKey, string(outcome)))

			return haltErr
		}
	}

	o.logbook.Append("Full pipeline completed successfully", events.ClassSuccess)
	o.logger.InfoContext(ctx, "Full pipeline completed")

	return nil
}

// StopStage cancels the currently selected stage. Local state flips to
// stopped immediately, the log book is wiped and the input slot cleared; the
// supervisor's own acknowledgment arrives later as an ordinary terminal
// event and is not treated specially.
func (o *Orchestrator) StopStage(ctx context.Context) error {
	stageID := o.Selected()
	if stageID == "" {
		return ErrNoStageSelected
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.stop_stage",
		attribute.String(otelhelper.StageIDKey, stageID),
	)
	defer span.End()

	if !o.channel.Connected() {
		o.logbook.Append("Cannot stop "+o.displayName(stageID)+": not connected to supervisor", events.ClassError)
		otelhelper.SetError(span, channel.ErrNotConnected)

		return channel.ErrNotConnected
	}

	if err := o.channel.Send(ctx, events.NewStopStage(stageID)); err != nil {
		o.logbook.Append("Failed to send stop command for "+o.displayName(stageID), events.ClassError)
		otelhelper.SetError(span, err)

		return fmt.Errorf("send stop command: %w", err)
	}

	o.store.Set(stageID, StatusStopped, 0)
	o.logbook.Clear()
	o.gate.Resolve()

	o.logger.InfoContext(ctx, "Stop command sent", "stage_id", stageID)

	return nil
}

// ShutdownAll cancels every stage currently running, whether started
// individually or by an in-flight pipeline run. Targeted stages flip to
// stopped optimistically and the auto-run guard is released.
func (o *Orchestrator) ShutdownAll(ctx context.Context) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.shutdown_all")
	defer span.End()

	running := o.store.Running()
	if len(running) == 0 {
		o.logbook.Append("No running stages to stop", events.ClassSystem)

		return nil
	}

	if !o.channel.Connected() {
		o.logbook.Append("Cannot stop running stages: not connected to supervisor", events.ClassError)
		otelhelper.SetError(span, channel.ErrNotConnected)

		return channel.ErrNotConnected
	}

	var errs error

	for _, stageID := range running {
		if err := o.channel.Send(ctx, events.NewStopStage(stageID)); err != nil {
			o.logger.ErrorContext(ctx, "Failed to send stop command", "stage_id", stageID, "error", err)
			errs = errors.Join(errs, fmt.Errorf("stop %s: %w", stageID, err))
		}
	}

	o.logbook.Append(fmt.Sprintf("Stopping %d running stage(s)", len(running)), events.ClassSystem)
	o.gate.Resolve()
	o.autoRunning.Store(false)

	for _, stageID := range running {
		o.store.Set(stageID, StatusStopped, 0)
	}

	o.logger.InfoContext(ctx, "Shutdown issued", "stages", len(running))

	if errs != nil {
		otelhelper.SetError(span, errs)
	}

	return errs
}

// SubmitInput answers the pending prompt. Blank input, or input with no
// pending request, is dropped silently: no channel traffic, no log entry,
// and the slot stays as it was.
func (o *Orchestrator) SubmitInput(ctx context.Context, text string) error {
	request, ok := o.gate.Current()
	if !ok {
		return nil
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.submit_input",
		attribute.String(otelhelper.StageIDKey, request.StageID),
	)
	defer span.End()

	if !o.channel.Connected() {
		o.logbook.Append("Cannot send input: not connected to supervisor", events.ClassError)
		otelhelper.SetError(span, channel.ErrNotConnected)

		return channel.ErrNotConnected
	}

	if err := o.channel.Send(ctx, events.NewSubmitInput(request.StageID, trimmed)); err != nil {
		o.logbook.Append("Failed to send input for "+o.displayName(request.StageID), events.ClassError)
		otelhelper.SetError(span, err)

		return fmt.Errorf("send input: %w", err)
	}

	o.gate.Resolve()
	o.logger.InfoContext(ctx, "Input submitted", "stage_id", request.StageID)

	return nil
}

// Select focuses a stage. The focused stage is the target of StopStage.
func (o *Orchestrator) Select(stageID string) error {
	if _, ok := o.catalog.Get(stageID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	o.setSelected(stageID)

	return nil
}

// ClearLogs wipes the activity feed and all execution state in one motion.
// Selection and any pending input request survive.
func (o *Orchestrator) ClearLogs() {
	o.logbook.Clear()
	o.store.Clear()
}

// Selected returns the stage currently in focus, or the empty string.
func (o *Orchestrator) Selected() string {
	o.selectedMu.RLock()
	defer o.selectedMu.RUnlock()

	return o.selected
}

// AutoRunning reports whether a full-pipeline run is in flight.
func (o *Orchestrator) AutoRunning() bool {
	return o.autoRunning.Load()
}

// Connected reports whether the supervisor is reachable.
func (o *Orchestrator) Connected() bool {
	return o.channel.Connected()
}

// StageStates returns a snapshot of every tracked execution state.
func (o *Orchestrator) StageStates() map[string]ExecutionState {
	return o.store.Snapshot()
}

// StageState returns the execution state of one stage.
func (o *Orchestrator) StageState(stageID string) ExecutionState {
	return o.store.Get(stageID)
}

// Logs returns the activity feed in arrival order.
func (o *Orchestrator) Logs() []LogEntry {
	return o.logbook.All()
}

// PendingInput returns the outstanding input request, if any.
func (o *Orchestrator) PendingInput() (InputRequest, bool) {
	return o.gate.Current()
}

func (o *Orchestrator) setSelected(stageID string) {
	o.selectedMu.Lock()
	defer o.selectedMu.Unlock()

	o.selected = stageID
}

func (o *Orchestrator) displayName(stageID string) string {
	if desc, ok := o.catalog.Get(stageID); ok {
		return desc.Name
	}

	return stageID
}

func (o *Orchestrator) handleConnected(ctx context.Context, event any) error {
	connectedEvent, ok := event.(*events.Connected)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for Connected")

		return nil
	}

	message := connectedEvent.Message
	if message == "" {
		message = "Connected to backend supervisor"
	}

	o.logbook.Append(message, events.ClassSystem)
	o.logger.InfoContext(ctx, "Supervisor connected")

	return nil
}

func (o *Orchestrator) handleScriptOutput(ctx context.Context, event any) error {
	outputEvent, ok := event.(*events.ScriptOutput)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for ScriptOutput")

		return nil
	}

	class := outputEvent.Classification
	if class == "" {
		class = events.ClassInfo
	}

	o.logbook.Append(outputEvent.Output, class)
	o.store.Bump(outputEvent.StageID)

	return nil
}

func (o *Orchestrator) handleInputRequested(ctx context.Context, event any) error {
	requestEvent, ok := event.(*events.InputRequested)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for InputRequested")

		return nil
	}

	o.logbook.Append(requestEvent.Prompt, events.ClassInput)
	o.gate.Request(requestEvent.StageID, requestEvent.Prompt)
	o.logger.InfoContext(ctx, "Input requested", "stage_id", requestEvent.StageID)

	return nil
}

func (o *Orchestrator) handleExecutionStarted(ctx context.Context, event any) error {
	startedEvent, ok := event.(*events.ExecutionStarted)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for ExecutionStarted")

		return nil
	}

	o.store.Set(startedEvent.StageID, StatusRunning, 0)
	o.logbook.Append("Execution started: "+o.displayName(startedEvent.StageID), events.ClassSystem)
	o.logger.InfoContext(ctx, "Execution started", "stage_id", startedEvent.StageID)

	return nil
}

func (o *Orchestrator) handleExecutionFinished(ctx context.Context, event any) error {
	finishedEvent, ok := event.(*events.ExecutionFinished)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for ExecutionFinished")

		return nil
	}

	stageID := finishedEvent.StageID
	outcome := finishedEvent.Outcome

	switch outcome {
	case events.OutcomeSuccess:
		o.store.Set(stageID, StatusCompleted, progressComplete)
		o.logbook.Append(o.displayName(stageID)+" completed successfully", events.ClassSuccess)
	case events.OutcomeStopped:
		o.store.Set(stageID, StatusStopped, 0)
		o.logbook.Append(o.displayName(stageID)+" stopped", events.ClassSystem)
	default:
		// Anything unrecognized counts as a failure.
		outcome = events.OutcomeFailure

		o.store.Set(stageID, StatusError, 0)
		o.logbook.Append(o.displayName(stageID)+" failed", events.ClassError)
	}

	o.awaits.resolve(stageID, outcome)
	o.logger.InfoContext(ctx, "Execution finished", "stage_id", stageID, "outcome", outcome)

	return nil
}

func (o *Orchestrator) handleExecutionError(ctx context.Context, event any) error {
	errorEvent, ok := event.(*events.ExecutionError)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for ExecutionError")

		return nil
	}

	o.store.Set(errorEvent.StageID, StatusError, 0)
	o.logbook.Append(errorEvent.Error, events.ClassError)
	o.awaits.resolve(errorEvent.StageID, events.OutcomeFailure)
	o.logger.ErrorContext(ctx, "Execution error", "stage_id", errorEvent.StageID, "error", errorEvent.Error)

	return nil
}

func (o *Orchestrator) handleInputAcknowledged(ctx context.Context, event any) error {
	ackEvent, ok := event.(*events.InputAcknowledged)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for InputAcknowledged")

		return nil
	}

	o.logbook.Append("> "+ackEvent.Input, events.ClassUser)

	return nil
}

func (o *Orchestrator) handleDisconnect() {
	o.logbook.Append("Disconnected from supervisor", events.ClassError)
	o.logger.Warn("Supervisor disconnected")
}
