// Package provenance records the replayable trail behind every pipeline
// invocation: pipeline runs, agent runs, per-step logs, and domain events.
package provenance

import (
	"time"

	"github.com/google/uuid"
)

// Run and step statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Details is a free-form JSON payload attached to runs, steps, and events.
type Details map[string]any

// Merge returns a copy of d with overlay entries applied on top.
func (d Details) Merge(overlay Details) Details {
	merged := make(Details, len(d)+len(overlay))
	for k, v := range d {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// PipelineRun is the top-level record of a pipeline invocation.
type PipelineRun struct {
	ID           uuid.UUID  `json:"id"`
	PipelineType string     `json:"pipeline_type"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Details      Details    `json:"details"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AgentRun is the agent-level child of a pipeline run.
type AgentRun struct {
	ID            uuid.UUID  `json:"id"`
	AgentName     string     `json:"agent_name"`
	AgentVersion  string     `json:"agent_version"`
	PipelineRunID uuid.UUID  `json:"pipeline_run_id"`
	EvidenceID    *uuid.UUID `json:"evidence_id"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Details       Details    `json:"details"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StepLog captures one pipeline step with its input and output snapshots.
type StepLog struct {
	ID             uuid.UUID  `json:"id"`
	AgentRunID     uuid.UUID  `json:"agent_run_id"`
	StepName       string     `json:"step_name"`
	Status         string     `json:"status"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	InputSnapshot  Details    `json:"input_snapshot"`
	OutputSnapshot Details    `json:"output_snapshot"`
	Error          *string    `json:"error"`
	Metadata       Details    `json:"metadata"`
}

// Event is an immutable domain event emitted during a pipeline run.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	EventType      string     `json:"event_type"`
	EvidenceID     *uuid.UUID `json:"evidence_id"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	Payload        Details    `json:"payload"`
	CreatedAt      time.Time  `json:"created_at"`
}
