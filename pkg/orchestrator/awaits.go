package orchestrator

import (
	"sync"

	"github.com/paullozen/autofx/pkg/events"
)

// terminalResult is what an awaited execution settles with.
type terminalResult struct {
	outcome events.Outcome
	err     error
}

// awaitRegistry correlates in-flight executions with their terminal events.
// At most one waiter exists per stage id; registering a second waiter for the
// same stage displaces the first, which settles with ErrSuperseded instead of
// leaking.
type awaitRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan terminalResult
}

func newAwaitRegistry() *awaitRegistry {
	return &awaitRegistry{waiters: make(map[string]chan terminalResult)}
}

// register creates the one-shot waiter for a stage.
func (r *awaitRegistry) register(stageID string) chan terminalResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.waiters[stageID]; ok {
		select {
		case prev <- terminalResult{err: ErrSuperseded}:
		default:
		}
	}

	waiter := make(chan terminalResult, 1)
	r.waiters[stageID] = waiter

	return waiter
}

// resolve settles the waiter for a stage, if one exists, and removes it.
// Later terminal events for the same stage find no waiter and are ignored
// here, which makes duplicated terminal notifications harmless.
func (r *awaitRegistry) resolve(stageID string, outcome events.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiter, ok := r.waiters[stageID]
	if !ok {
		return
	}

	select {
	case waiter <- terminalResult{outcome: outcome}:
	default:
	}

	delete(r.waiters, stageID)
}

// deregister removes a waiter without settling it. The channel comparison
// keeps a successor registered for the same stage in place.
func (r *awaitRegistry) deregister(stageID string, waiter chan terminalResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.waiters[stageID]; ok && current == waiter {
		delete(r.waiters, stageID)
	}
}
