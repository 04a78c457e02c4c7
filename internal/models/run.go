package models

import (
	"time"

	"github.com/google/uuid"
)

// RunState tracks where a pipeline run is in its lifecycle.
type RunState string

const (
	RunRunning              RunState = "running"
	RunAwaitingUserApproval RunState = "awaiting_user_approval"
	RunSucceeded            RunState = "succeeded"
	RunFailed               RunState = "failed"
	RunAborted              RunState = "aborted"
)

// PipelineRun is one execution of the ordered stage sequence bound to one
// ContextBundle. The bundle travels inside the run record so the latest
// version survives failures for inspection.
type PipelineRun struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id,omitempty"`
	State            RunState       `json:"state"`
	Bundle           *ContextBundle `json:"bundle"`
	StageIndex       int            `json:"stage_index"`
	StructureRevised bool           `json:"structure_revised"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewPipelineRun binds a fresh run to a bundle.
func NewPipelineRun(b *ContextBundle, sessionID string) *PipelineRun {
	return &PipelineRun{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		State:     RunRunning,
		Bundle:    b,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the run.
func (r *PipelineRun) Clone() *PipelineRun {
	c := *r
	if r.Bundle != nil {
		c.Bundle = r.Bundle.Clone()
	}
	return &c
}
