package orchestrator

import "sync"

// InputRequest is an outstanding interactive prompt from a running stage.
type InputRequest struct {
	StageID string `json:"stage_id"`
	Prompt  string `json:"prompt"`
}

// InputGate holds at most one outstanding input request. A newer request
// silently supersedes the current one: the supervisor runs one conversation
// at a time, so a displaced prompt can no longer be answered anyway.
type InputGate struct {
	mu      sync.RWMutex
	pending *InputRequest
}

func NewInputGate() *InputGate {
	return &InputGate{}
}

// Request fills the slot, replacing whatever was pending.
func (g *InputGate) Request(stageID, prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = &InputRequest{StageID: stageID, Prompt: prompt}
}

// Current returns the pending request, if any.
func (g *InputGate) Current() (InputRequest, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.pending == nil {
		return InputRequest{}, false
	}

	return *g.pending, true
}

// Resolve clears the slot.
func (g *InputGate) Resolve() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = nil
}
