package organizations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates an organization repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "organizations"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) List(ctx context.Context) ([]Organization, error) {
	q := `
		SELECT id, name, created_at
		FROM organizations
		ORDER BY name`

	orgs, err := repository.QueryMany(ctx, r.db, q, nil, scanOrganization)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}

	return orgs, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Organization, error) {
	q := `
		SELECT id, name, created_at
		FROM organizations
		WHERE id = $1`

	org, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanOrganization)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &org, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Organization, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, ErrInvalidName
	}

	q := `
		INSERT INTO organizations(id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at`

	org, err := repository.QueryOne(ctx, r.db, q, []any{uuid.New(), cmd.Name}, scanOrganization)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("organization created", "id", org.ID, "name", org.Name)
	return &org, nil
}

func scanOrganization(s repository.Scanner) (Organization, error) {
	var o Organization
	err := s.Scan(&o.ID, &o.Name, &o.CreatedAt)
	return o, err
}
