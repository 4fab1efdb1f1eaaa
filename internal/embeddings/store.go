package embeddings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Neighbor identifies the evidence behind a stored embedding matched by a
// lookup, along with its L2 distance from the probe vector.
type Neighbor struct {
	EvidenceID uuid.UUID
	Distance   float64
}

// Store defines embedding persistence and similarity lookup operations.
type Store interface {
	// Upsert stores the embedding for the given evidence, replacing any prior
	// vector recorded under the same model and content hash.
	Upsert(ctx context.Context, evidenceID uuid.UUID, text, contentHash string) error
	// FindByHash returns the evidence behind the newest embedding with the
	// given content hash. Returns ErrNoEmbedding when none exists.
	FindByHash(ctx context.Context, contentHash string) (*Neighbor, error)
	// Nearest returns the closest stored embedding within maxDistance of the
	// text's embedding. Returns ErrNoEmbedding when none qualifies.
	Nearest(ctx context.Context, text string, maxDistance float64) (*Neighbor, error)
}

type store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a pgvector-backed embedding store.
func NewStore(db *sql.DB, logger *slog.Logger) Store {
	return &store{
		db:     db,
		logger: logger.With("system", "embeddings"),
	}
}

func (s *store) Upsert(ctx context.Context, evidenceID uuid.UUID, text, contentHash string) error {
	q := `
		INSERT INTO evidence_embeddings(id, evidence_id, model_name, content_hash, vector, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (evidence_id, model_name, content_hash)
		DO UPDATE SET vector = EXCLUDED.vector`

	_, err := s.db.ExecContext(ctx, q,
		uuid.New(),
		evidenceID,
		ModelName,
		contentHash,
		Embed(text),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding for evidence %s: %w", evidenceID, err)
	}

	return nil
}

func (s *store) FindByHash(ctx context.Context, contentHash string) (*Neighbor, error) {
	q := `
		SELECT evidence_id
		FROM evidence_embeddings
		WHERE content_hash = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var evidenceID uuid.UUID
	if err := s.db.QueryRowContext(ctx, q, contentHash).Scan(&evidenceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEmbedding
		}
		return nil, fmt.Errorf("find embedding by hash: %w", err)
	}

	return &Neighbor{EvidenceID: evidenceID, Distance: 0}, nil
}

func (s *store) Nearest(ctx context.Context, text string, maxDistance float64) (*Neighbor, error) {
	q := `
		SELECT evidence_id, vector <-> $1 AS distance
		FROM evidence_embeddings
		WHERE vector <-> $1 <= $2
		ORDER BY distance
		LIMIT 1`

	var n Neighbor
	err := s.db.QueryRowContext(ctx, q, Embed(text), maxDistance).Scan(&n.EvidenceID, &n.Distance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEmbedding
		}
		return nil, fmt.Errorf("nearest embedding: %w", err)
	}

	return &n, nil
}
