// Package organizations provides the organization domain: the tenant boundary
// that evidence, tasks, and events hang off of.
package organizations

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant that owns evidence and tasks.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCommand carries the fields required to register an organization.
type CreateCommand struct {
	Name string `json:"name"`
}
