package organizations

import (
	"context"

	"github.com/google/uuid"
)

// System defines the public contract for organization domain operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context) ([]Organization, error)
	Find(ctx context.Context, id uuid.UUID) (*Organization, error)
	Create(ctx context.Context, cmd CreateCommand) (*Organization, error)
}
