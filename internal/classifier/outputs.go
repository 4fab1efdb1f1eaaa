package classifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/repository"
)

// Output is one append-only classifier result row for an evidence item.
type Output struct {
	ID              uuid.UUID      `json:"id"`
	EvidenceID      uuid.UUID      `json:"evidence_id"`
	PipelineRunID   uuid.UUID      `json:"pipeline_run_id"`
	PrimaryControls []string       `json:"primary_controls"`
	Confidence      float64        `json:"confidence"`
	RawOutput       map[string]any `json:"raw_output"`
	CreatedAt       time.Time      `json:"created_at"`
}

// OutputStore persists classifier outputs.
type OutputStore interface {
	Create(ctx context.Context, out *Output) error
	// LatestForEvidence returns the newest output for an evidence item.
	// Returns ErrNoOutput when none exists.
	LatestForEvidence(ctx context.Context, evidenceID uuid.UUID) (*Output, error)
}

type outputStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOutputStore creates a Postgres-backed classifier output store.
func NewOutputStore(db *sql.DB, logger *slog.Logger) OutputStore {
	return &outputStore{
		db:     db,
		logger: logger.With("system", "classifier-outputs"),
	}
}

func (s *outputStore) Create(ctx context.Context, out *Output) error {
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}

	primaries, err := json.Marshal(out.PrimaryControls)
	if err != nil {
		return fmt.Errorf("marshal primary controls: %w", err)
	}
	raw, err := json.Marshal(out.RawOutput)
	if err != nil {
		return fmt.Errorf("marshal raw output: %w", err)
	}

	q := `
		INSERT INTO classifier_outputs(id, evidence_id, pipeline_run_id, primary_controls, confidence, raw_output)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err = s.db.QueryRowContext(ctx, q,
		out.ID, out.EvidenceID, out.PipelineRunID, primaries, out.Confidence, raw,
	).Scan(&out.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert classifier output: %w", err)
	}

	return nil
}

func (s *outputStore) LatestForEvidence(ctx context.Context, evidenceID uuid.UUID) (*Output, error) {
	q := `
		SELECT id, evidence_id, pipeline_run_id, primary_controls, confidence, raw_output, created_at
		FROM classifier_outputs
		WHERE evidence_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	out, err := repository.QueryOne(ctx, s.db, q, []any{evidenceID}, scanOutput)
	if err != nil {
		return nil, repository.MapError(err, ErrNoOutput, ErrNoOutput)
	}

	return &out, nil
}

func scanOutput(s repository.Scanner) (Output, error) {
	var (
		out            Output
		primaries, raw []byte
	)

	err := s.Scan(
		&out.ID, &out.EvidenceID, &out.PipelineRunID,
		&primaries, &out.Confidence, &raw, &out.CreatedAt,
	)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(primaries, &out.PrimaryControls); err != nil {
		return out, fmt.Errorf("decode primary controls: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.RawOutput); err != nil {
			return out, fmt.Errorf("decode raw output: %w", err)
		}
	}

	return out, nil
}
