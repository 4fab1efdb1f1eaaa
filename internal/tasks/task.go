// Package tasks provides remediation tasks and their auto-creation from
// classified controls.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// StatusOpen is the initial status for auto-created tasks.
const StatusOpen = "open"

// Task represents an evidence-collection or remediation task tied to a
// control.
type Task struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	FrameworkID    uuid.UUID  `json:"framework_id"`
	ControlID      uuid.UUID  `json:"control_id"`
	EvidenceID     *uuid.UUID `json:"evidence_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
