package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/repository"
)

type store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a Postgres-backed provenance store.
func NewStore(db *sql.DB, logger *slog.Logger) Store {
	return &store{
		db:     db,
		logger: logger.With("system", "provenance"),
	}
}

// Handler creates the provenance inspection handler backed by this store.
func (s *store) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *store) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	details, err := marshalDetails(run.Details)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO pipeline_runs(id, pipeline_type, status, started_at, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(ctx, q,
		run.ID, run.PipelineType, run.Status, run.StartedAt, details,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}

	return nil
}

func (s *store) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	details, err := marshalDetails(run.Details)
	if err != nil {
		return err
	}

	q := `
		UPDATE pipeline_runs
		SET status = $2, finished_at = $3, details = $4, updated_at = now()
		WHERE id = $1`

	if err := repository.ExecExpectOne(ctx, s.db, q, run.ID, run.Status, run.FinishedAt, details); err != nil {
		return fmt.Errorf("update pipeline run %s: %w", run.ID, err)
	}

	return nil
}

func (s *store) CreateAgentRun(ctx context.Context, run *AgentRun) error {
	details, err := marshalDetails(run.Details)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO agent_runs(id, agent_name, agent_version, pipeline_run_id, evidence_id, status, started_at, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(ctx, q,
		run.ID, run.AgentName, run.AgentVersion, run.PipelineRunID,
		run.EvidenceID, run.Status, run.StartedAt, details,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert agent run: %w", err)
	}

	return nil
}

func (s *store) UpdateAgentRun(ctx context.Context, run *AgentRun) error {
	details, err := marshalDetails(run.Details)
	if err != nil {
		return err
	}

	q := `
		UPDATE agent_runs
		SET status = $2, finished_at = $3, details = $4, updated_at = now()
		WHERE id = $1`

	if err := repository.ExecExpectOne(ctx, s.db, q, run.ID, run.Status, run.FinishedAt, details); err != nil {
		return fmt.Errorf("update agent run %s: %w", run.ID, err)
	}

	return nil
}

func (s *store) CreateStepLog(ctx context.Context, step *StepLog) error {
	input, err := marshalDetails(step.InputSnapshot)
	if err != nil {
		return err
	}
	metadata, err := marshalDetails(step.Metadata)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO agent_step_logs(id, agent_run_id, step_name, status, started_at, input_snapshot, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, q,
		step.ID, step.AgentRunID, step.StepName, step.Status, step.StartedAt, input, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert step log: %w", err)
	}

	return nil
}

func (s *store) UpdateStepLog(ctx context.Context, step *StepLog) error {
	output, err := marshalDetails(step.OutputSnapshot)
	if err != nil {
		return err
	}
	metadata, err := marshalDetails(step.Metadata)
	if err != nil {
		return err
	}

	q := `
		UPDATE agent_step_logs
		SET status = $2, finished_at = $3, output_snapshot = $4, error = $5, metadata = $6
		WHERE id = $1`

	if err := repository.ExecExpectOne(ctx, s.db, q,
		step.ID, step.Status, step.FinishedAt, output, step.Error, metadata,
	); err != nil {
		return fmt.Errorf("update step log %s: %w", step.ID, err)
	}

	return nil
}

func (s *store) CreateEvent(ctx context.Context, event *Event) error {
	payload, err := marshalDetails(event.Payload)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO events(id, event_type, evidence_id, organization_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err = s.db.QueryRowContext(ctx, q,
		event.ID, event.EventType, event.EvidenceID, event.OrganizationID, payload,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

func (s *store) FindRun(ctx context.Context, id uuid.UUID) (*PipelineRun, error) {
	q := `
		SELECT id, pipeline_type, status, started_at, finished_at, details, created_at, updated_at
		FROM pipeline_runs
		WHERE id = $1`

	run, err := repository.QueryOne(ctx, s.db, q, []any{id}, scanPipelineRun)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}

	return &run, nil
}

func (s *store) RunsForEvidence(ctx context.Context, evidenceID uuid.UUID) ([]PipelineRun, error) {
	q := `
		SELECT pr.id, pr.pipeline_type, pr.status, pr.started_at, pr.finished_at, pr.details, pr.created_at, pr.updated_at
		FROM pipeline_runs pr
		JOIN agent_runs ar ON ar.pipeline_run_id = pr.id
		WHERE ar.evidence_id = $1
		ORDER BY pr.started_at DESC`

	runs, err := repository.QueryMany(ctx, s.db, q, []any{evidenceID}, scanPipelineRun)
	if err != nil {
		return nil, fmt.Errorf("query runs for evidence: %w", err)
	}

	return runs, nil
}

func (s *store) StepsForRun(ctx context.Context, pipelineRunID uuid.UUID) ([]StepLog, error) {
	q := `
		SELECT sl.id, sl.agent_run_id, sl.step_name, sl.status, sl.started_at, sl.finished_at,
			sl.input_snapshot, sl.output_snapshot, sl.error, sl.metadata
		FROM agent_step_logs sl
		JOIN agent_runs ar ON ar.id = sl.agent_run_id
		WHERE ar.pipeline_run_id = $1
		ORDER BY sl.started_at`

	steps, err := repository.QueryMany(ctx, s.db, q, []any{pipelineRunID}, scanStepLog)
	if err != nil {
		return nil, fmt.Errorf("query steps for run: %w", err)
	}

	return steps, nil
}

func (s *store) EventsForEvidence(ctx context.Context, evidenceID uuid.UUID) ([]Event, error) {
	q := `
		SELECT id, event_type, evidence_id, organization_id, payload, created_at
		FROM events
		WHERE evidence_id = $1
		ORDER BY created_at`

	events, err := repository.QueryMany(ctx, s.db, q, []any{evidenceID}, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query events for evidence: %w", err)
	}

	return events, nil
}

func marshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return raw, nil
}

func unmarshalDetails(raw []byte) (Details, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d Details
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return d, nil
}

func scanPipelineRun(s repository.Scanner) (PipelineRun, error) {
	var (
		run PipelineRun
		raw []byte
	)

	err := s.Scan(
		&run.ID, &run.PipelineType, &run.Status,
		&run.StartedAt, &run.FinishedAt, &raw,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return run, err
	}

	run.Details, err = unmarshalDetails(raw)
	return run, err
}

func scanStepLog(s repository.Scanner) (StepLog, error) {
	var (
		step                    StepLog
		input, output, metadata []byte
	)

	err := s.Scan(
		&step.ID, &step.AgentRunID, &step.StepName, &step.Status,
		&step.StartedAt, &step.FinishedAt,
		&input, &output, &step.Error, &metadata,
	)
	if err != nil {
		return step, err
	}

	if step.InputSnapshot, err = unmarshalDetails(input); err != nil {
		return step, err
	}
	if step.OutputSnapshot, err = unmarshalDetails(output); err != nil {
		return step, err
	}
	step.Metadata, err = unmarshalDetails(metadata)
	return step, err
}

func scanEvent(s repository.Scanner) (Event, error) {
	var (
		event Event
		raw   []byte
	)

	err := s.Scan(
		&event.ID, &event.EventType, &event.EvidenceID,
		&event.OrganizationID, &raw, &event.CreatedAt,
	)
	if err != nil {
		return event, err
	}

	event.Payload, err = unmarshalDetails(raw)
	return event, err
}
