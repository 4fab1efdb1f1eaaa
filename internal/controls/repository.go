package controls

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/repository"
)

// DefaultCandidateLimit bounds candidate retrieval when no limit is given.
const DefaultCandidateLimit = 5

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a control repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "controls"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) List(ctx context.Context) ([]Control, error) {
	q := `
		SELECT id, framework_id, reference, title, description, risk_level, created_at
		FROM controls
		ORDER BY reference`

	ctrls, err := repository.QueryMany(ctx, r.db, q, nil, scanControl)
	if err != nil {
		return nil, fmt.Errorf("query controls: %w", err)
	}

	return ctrls, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Control, error) {
	q := `
		SELECT id, framework_id, reference, title, description, risk_level, created_at
		FROM controls
		WHERE id = $1`

	c, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanControl)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &c, nil
}

// TopCandidates runs a weighted full-text search over the control catalog.
// Reference and description carry weight A, title weight B; the websearch
// query form handles multi-term evidence text better than plain parsing.
func (r *repo) TopCandidates(ctx context.Context, text string, limit int) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Candidate{}, nil
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	q := `
		WITH ranked AS (
			SELECT id, framework_id, reference, title, description, risk_level, created_at,
				ts_rank(
					setweight(to_tsvector('english', reference), 'A') ||
					setweight(to_tsvector('english', coalesce(title, '')), 'B') ||
					setweight(to_tsvector('english', coalesce(description, '')), 'A'),
					websearch_to_tsquery('english', $1)
				) AS rank
			FROM controls
		)
		SELECT id, framework_id, reference, title, description, risk_level, created_at, rank
		FROM ranked
		WHERE rank > 0
		ORDER BY rank DESC
		LIMIT $2`

	candidates, err := repository.QueryMany(ctx, r.db, q, []any{text, limit}, scanCandidate)
	if err != nil {
		return nil, fmt.Errorf("rank control candidates: %w", err)
	}

	return candidates, nil
}

func scanControl(s repository.Scanner) (Control, error) {
	var c Control
	err := s.Scan(&c.ID, &c.FrameworkID, &c.Reference, &c.Title, &c.Description, &c.RiskLevel, &c.CreatedAt)
	return c, err
}

func scanCandidate(s repository.Scanner) (Candidate, error) {
	var c Candidate
	err := s.Scan(
		&c.Control.ID,
		&c.Control.FrameworkID,
		&c.Control.Reference,
		&c.Control.Title,
		&c.Control.Description,
		&c.Control.RiskLevel,
		&c.Control.CreatedAt,
		&c.Score,
	)
	return c, err
}
