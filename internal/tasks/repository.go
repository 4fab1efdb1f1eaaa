package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/pagination"
	"github.com/auditstack/attest/pkg/repository"
)

const projection = `
	id, organization_id, framework_id, control_id, evidence_id,
	title, description, status, created_at, updated_at`

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a task repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "tasks"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	organizationID *uuid.UUID,
) (*pagination.PageResult[Task], error) {
	page.Normalize(r.pagination)

	clause := "1 = 1"
	args := []any{}

	if organizationID != nil {
		args = append(args, *organizationID)
		clause = "organization_id = $1"
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM tasks WHERE " + clause
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	pageSQL := fmt.Sprintf(
		"SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		projection, clause, len(args)+1, len(args)+2,
	)
	args = append(args, page.PageSize, page.Offset())

	items, err := repository.QueryMany(ctx, r.db, pageSQL, args, scanTask)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Task, error) {
	q := fmt.Sprintf("SELECT %s FROM tasks WHERE id = $1", projection)

	t, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanTask)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &t, nil
}

func (r *repo) Exists(ctx context.Context, organizationID, controlID uuid.UUID, title string) (bool, error) {
	q := `
		SELECT EXISTS(
			SELECT 1 FROM tasks
			WHERE organization_id = $1 AND control_id = $2 AND title = $3
		)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, q, organizationID, controlID, title).Scan(&exists); err != nil {
		return false, fmt.Errorf("check task existence: %w", err)
	}

	return exists, nil
}

func (r *repo) Create(ctx context.Context, task *Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = StatusOpen
	}

	q := `
		INSERT INTO tasks(id, organization_id, framework_id, control_id, evidence_id, title, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, q,
		task.ID, task.OrganizationID, task.FrameworkID, task.ControlID,
		task.EvidenceID, task.Title, task.Description, task.Status,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("task created", "id", task.ID, "control", task.ControlID)
	return nil
}

func scanTask(s repository.Scanner) (Task, error) {
	var t Task
	err := s.Scan(
		&t.ID, &t.OrganizationID, &t.FrameworkID, &t.ControlID, &t.EvidenceID,
		&t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
