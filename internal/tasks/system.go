package tasks

import (
	"context"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/pagination"
)

// System defines the public contract for task domain operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		organizationID *uuid.UUID,
	) (*pagination.PageResult[Task], error)

	Find(ctx context.Context, id uuid.UUID) (*Task, error)

	// Exists reports whether a task with the same organization, control, and
	// title is already present. This is the auto-creation dedup rule.
	Exists(ctx context.Context, organizationID, controlID uuid.UUID, title string) (bool, error)

	Create(ctx context.Context, task *Task) error
}
