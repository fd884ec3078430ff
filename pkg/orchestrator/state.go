package orchestrator

import (
	"maps"
	"slices"
	"sync"
)

// Status is the lifecycle state of one stage.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

const (
	progressStep     = 5
	progressCeiling  = 95 // headroom so progress never reads complete before the terminal event
	progressComplete = 100
)

// ExecutionState pairs a stage's lifecycle status with its synthetic progress
// value. Progress is an activity heuristic, never a real completion fraction.
type ExecutionState struct {
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
}

// ExecutionStore maps stage ids to execution state. It is the single source
// of truth the dashboard renders from. Safe for concurrent use.
type ExecutionStore struct {
	mu     sync.RWMutex
	states map[string]ExecutionState
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{states: make(map[string]ExecutionState)}
}

// Get returns the state for a stage. Stages that never ran report idle with
// zero progress.
func (s *ExecutionStore) Get(stageID string) ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[stageID]
	if !ok {
		return ExecutionState{Status: StatusIdle}
	}

	return state
}

// Set transitions a stage, normalizing progress to the lifecycle invariant:
// completed pins progress to 100; idle, stopped and error reset it to 0.
func (s *ExecutionStore) Set(stageID string, status Status, progress int) {
	switch status {
	case StatusCompleted:
		progress = progressComplete
	case StatusIdle, StatusStopped, StatusError:
		progress = 0
	case StatusRunning:
		progress = min(max(progress, 0), progressCeiling)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[stageID] = ExecutionState{Status: status, Progress: progress}
}

// Bump advances the progress heuristic of a running stage by one step, capped
// below completion. Stages in any other state are left untouched so their
// progress stays pinned to the status invariant.
func (s *ExecutionStore) Bump(stageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[stageID]
	if !ok || state.Status != StatusRunning {
		return
	}

	state.Progress = min(state.Progress+progressStep, progressCeiling)
	s.states[stageID] = state
}

// Running returns the ids of all stages currently running, sorted for
// deterministic iteration.
func (s *ExecutionStore) Running() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string

	for stageID, state := range s.states {
		if state.Status == StatusRunning {
			ids = append(ids, stageID)
		}
	}

	slices.Sort(ids)

	return ids
}

// Snapshot returns a copy of all tracked states for rendering.
func (s *ExecutionStore) Snapshot() map[string]ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.states)
}

// Clear wipes every entry.
func (s *ExecutionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[string]ExecutionState)
}
