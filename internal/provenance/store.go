package provenance

import (
	"context"

	"github.com/google/uuid"
)

// Store defines provenance persistence. The recorder drives the write
// operations; the handler serves the queries.
type Store interface {
	Handler() *Handler

	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	CreateAgentRun(ctx context.Context, run *AgentRun) error
	UpdateAgentRun(ctx context.Context, run *AgentRun) error
	CreateStepLog(ctx context.Context, step *StepLog) error
	UpdateStepLog(ctx context.Context, step *StepLog) error
	CreateEvent(ctx context.Context, event *Event) error

	FindRun(ctx context.Context, id uuid.UUID) (*PipelineRun, error)
	RunsForEvidence(ctx context.Context, evidenceID uuid.UUID) ([]PipelineRun, error)
	StepsForRun(ctx context.Context, pipelineRunID uuid.UUID) ([]StepLog, error)
	EventsForEvidence(ctx context.Context, evidenceID uuid.UUID) ([]Event, error)
}
