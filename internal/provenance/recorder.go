package provenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder persists the provenance trail for a single pipeline invocation:
// one pipeline run, one child agent run, step logs, and events. It is not
// safe for concurrent use; each invocation gets its own Recorder.
type Recorder struct {
	store          Store
	pipelineType   string
	agentName      string
	agentVersion   string
	evidenceID     *uuid.UUID
	organizationID *uuid.UUID

	run      *PipelineRun
	agentRun *AgentRun
}

// NewRecorder creates a Recorder for one pipeline invocation.
func NewRecorder(
	store Store,
	pipelineType, agentName, agentVersion string,
	evidenceID, organizationID *uuid.UUID,
) *Recorder {
	return &Recorder{
		store:          store,
		pipelineType:   pipelineType,
		agentName:      agentName,
		agentVersion:   agentVersion,
		evidenceID:     evidenceID,
		organizationID: organizationID,
	}
}

// Run returns the pipeline run created by Start, or nil before Start.
func (r *Recorder) Run() *PipelineRun { return r.run }

// AgentRun returns the agent run created by Start, or nil before Start.
func (r *Recorder) AgentRun() *AgentRun { return r.agentRun }

// Start creates the pipeline run and its child agent run in running state.
// The run details seed with the ordered step names, agent identity, and
// cache_hit=false, overlaid with initial.
func (r *Recorder) Start(ctx context.Context, stepNames []string, initial Details) (*PipelineRun, error) {
	now := time.Now().UTC()

	details := Details{
		"steps":     stepNames,
		"agent":     r.agentName,
		"version":   r.agentVersion,
		"cache_hit": false,
	}.Merge(initial)

	run := &PipelineRun{
		ID:           uuid.New(),
		PipelineType: r.pipelineType,
		Status:       StatusRunning,
		StartedAt:    &now,
		Details:      details,
	}
	if err := r.store.CreatePipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create pipeline run: %w", err)
	}

	agentRun := &AgentRun{
		ID:            uuid.New(),
		AgentName:     r.agentName,
		AgentVersion:  r.agentVersion,
		PipelineRunID: run.ID,
		EvidenceID:    r.evidenceID,
		Status:        StatusRunning,
		StartedAt:     &now,
		Details:       Details{"cache_hit": false},
	}
	if err := r.store.CreateAgentRun(ctx, agentRun); err != nil {
		return nil, fmt.Errorf("create agent run: %w", err)
	}

	r.run = run
	r.agentRun = agentRun
	return run, nil
}

// StartStep records a step in running state with its input snapshot.
func (r *Recorder) StartStep(ctx context.Context, name string, input Details) (*StepLog, error) {
	if r.agentRun == nil {
		return nil, ErrNotStarted
	}

	now := time.Now().UTC()
	step := &StepLog{
		ID:            uuid.New(),
		AgentRunID:    r.agentRun.ID,
		StepName:      name,
		Status:        StatusRunning,
		StartedAt:     &now,
		InputSnapshot: input,
	}
	if err := r.store.CreateStepLog(ctx, step); err != nil {
		return nil, fmt.Errorf("create step log %s: %w", name, err)
	}

	return step, nil
}

// CompleteStep marks the step completed with its output snapshot.
func (r *Recorder) CompleteStep(ctx context.Context, step *StepLog, output Details) error {
	return r.finishStep(ctx, step, StatusCompleted, output, nil)
}

// FailStep marks the step failed with the error message.
func (r *Recorder) FailStep(ctx context.Context, step *StepLog, stepErr error) error {
	return r.finishStep(ctx, step, StatusFailed, nil, stepErr)
}

func (r *Recorder) finishStep(ctx context.Context, step *StepLog, status string, output Details, stepErr error) error {
	now := time.Now().UTC()
	step.Status = status
	step.FinishedAt = &now
	if output != nil {
		step.OutputSnapshot = output
	}
	if stepErr != nil {
		msg := stepErr.Error()
		step.Error = &msg
	}

	if err := r.store.UpdateStepLog(ctx, step); err != nil {
		return fmt.Errorf("update step log %s: %w", step.StepName, err)
	}

	return nil
}

// Finish marks both run rows terminal with merged details.
func (r *Recorder) Finish(ctx context.Context, status string, details Details) error {
	if r.run == nil {
		return ErrNotStarted
	}

	now := time.Now().UTC()

	r.run.Status = status
	r.run.FinishedAt = &now
	r.run.Details = r.run.Details.Merge(details)
	if err := r.store.UpdatePipelineRun(ctx, r.run); err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}

	r.agentRun.Status = status
	r.agentRun.FinishedAt = &now
	r.agentRun.Details = r.agentRun.Details.Merge(details)
	if err := r.store.UpdateAgentRun(ctx, r.agentRun); err != nil {
		return fmt.Errorf("finish agent run: %w", err)
	}

	return nil
}

// EmitEvent records an immutable domain event tied to the recorder's
// evidence and organization.
func (r *Recorder) EmitEvent(ctx context.Context, eventType string, payload Details) error {
	if payload == nil {
		payload = Details{}
	}

	event := &Event{
		ID:             uuid.New(),
		EventType:      eventType,
		EvidenceID:     r.evidenceID,
		OrganizationID: r.organizationID,
		Payload:        payload,
	}
	if err := r.store.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("emit event %s: %w", eventType, err)
	}

	return nil
}
