package controls

import (
	"context"

	"github.com/google/uuid"
)

// System defines the public contract for control catalog operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context) ([]Control, error)
	Find(ctx context.Context, id uuid.UUID) (*Control, error)

	// TopCandidates ranks controls against the given text using weighted
	// full-text search and returns up to limit candidates with rank > 0,
	// best first. Empty text yields no candidates.
	TopCandidates(ctx context.Context, text string, limit int) ([]Candidate, error)
}
