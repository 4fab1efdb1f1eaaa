// Package controls provides the compliance control catalog and full-text
// candidate retrieval used by evidence classification.
package controls

import (
	"time"

	"github.com/google/uuid"
)

// Framework represents a compliance framework such as SOC2.
type Framework struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Version string    `json:"version"`
}

// Control represents a single control within a framework.
type Control struct {
	ID          uuid.UUID `json:"id"`
	FrameworkID uuid.UUID `json:"framework_id"`
	Reference   string    `json:"reference"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RiskLevel   string    `json:"risk_level"`
	CreatedAt   time.Time `json:"created_at"`
}

// Candidate pairs a control with its full-text search rank against a query.
type Candidate struct {
	Control Control `json:"control"`
	Score   float64 `json:"score"`
}
