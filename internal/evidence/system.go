package evidence

import (
	"context"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/pagination"
)

// System defines the public contract for evidence domain operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		organizationID *uuid.UUID,
	) (*pagination.PageResult[Evidence], error)

	Find(ctx context.Context, id uuid.UUID) (*Evidence, error)
	Create(ctx context.Context, cmd CreateCommand) (*Evidence, error)
	CreateFromFile(ctx context.Context, cmd UploadCommand) (*Evidence, error)

	// UpdateClassification writes the classification payload back to the
	// evidence row.
	UpdateClassification(ctx context.Context, id uuid.UUID, c Classification) error
}
