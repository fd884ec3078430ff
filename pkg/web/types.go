// Package web provides HTTP request and response types for the dashboard API.
package web

import (
	"github.com/paullozen/autofx/pkg/orchestrator"
	"github.com/paullozen/autofx/pkg/stage"
)

// StageResponse merges a catalog descriptor with its live execution state.
type StageResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	ScriptRef string              `json:"script_ref"`
	Group     stage.Group         `json:"group"`
	Status    orchestrator.Status `json:"status"`
	Progress  int                 `json:"progress"`
}

// NewStageResponse builds the merged view for one stage.
func NewStageResponse(desc stage.Descriptor, state orchestrator.ExecutionState) StageResponse {
	return StageResponse{
		ID:        desc.ID,
		Name:      desc.Name,
		ScriptRef: desc.ScriptRef,
		Group:     desc.Group,
		Status:    state.Status,
		Progress:  state.Progress,
	}
}

// SubmitInputRequest is the body for answering a pending input prompt.
type SubmitInputRequest struct {
	Input string `json:"input" validate:"required"`
}

// StateResponse is the full snapshot the dashboard polls.
type StateResponse struct {
	Connected     bool                                   `json:"connected"`
	AutoRunning   bool                                   `json:"auto_running"`
	SelectedStage string                                 `json:"selected_stage,omitempty"`
	Stages        map[string]orchestrator.ExecutionState `json:"stages"`
}

// InputRequestResponse reports the pending-input slot.
type InputRequestResponse struct {
	Pending bool   `json:"pending"`
	StageID string `json:"stage_id,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}
