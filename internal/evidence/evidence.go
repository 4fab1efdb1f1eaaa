// Package evidence provides the evidence domain: uploaded compliance
// artifacts, their extracted text, and their latest classification payload.
package evidence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/preprocess"
)

// Evidence represents a compliance artifact uploaded for classification.
type Evidence struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Title          string          `json:"title"`
	Description    *string         `json:"description"`
	EvidenceType   *string         `json:"evidence_type"`
	SourceType     *string         `json:"source_type"`
	StorageKey     *string         `json:"storage_key"`
	FileSize       *int64          `json:"file_size"`
	Status         string          `json:"status"`
	ExtractedText  string          `json:"extracted_text"`
	Classification *Classification `json:"ai_classification"`
	Tags           []string        `json:"tags"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Classification is the JSON payload written back to evidence after a
// pipeline run. Cache hits carry similarity and the source evidence id;
// full runs carry created task ids and the content hash.
type Classification struct {
	EvidenceID       string   `json:"evidence_id,omitempty"`
	PrimaryControls  []string `json:"primary_controls"`
	Confidence       float64  `json:"confidence"`
	PipelineRunID    string   `json:"pipeline_run_id,omitempty"`
	AgentRunID       string   `json:"agent_run_id,omitempty"`
	CreatedTasks     []string `json:"created_tasks,omitempty"`
	Stub             bool     `json:"stub"`
	CacheHit         bool     `json:"cache_hit"`
	Similarity       *float64 `json:"similarity,omitempty"`
	SourceEvidenceID string   `json:"source_evidence_id,omitempty"`
	ContentHash      string   `json:"content_hash,omitempty"`
}

// CreateCommand carries the fields for creating evidence from a JSON payload.
type CreateCommand struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	Title          string          `json:"title"`
	Description    *string         `json:"description"`
	EvidenceType   *string         `json:"evidence_type"`
	SourceType     *string         `json:"source_type"`
	RawText        *string         `json:"raw_text"`
	RawJSON        json.RawMessage `json:"raw_json"`
	FileSize       *int64          `json:"file_size"`
	Tags           []string        `json:"tags"`
}

// UploadCommand carries the fields for creating evidence from a file upload.
type UploadCommand struct {
	OrganizationID uuid.UUID
	Title          string
	Description    *string
	EvidenceType   *string
	SourceType     *string
	Filename       string
	ContentType    string
	Data           []byte
	Tags           []string
}

// Document maps the evidence fields that feed canonical text construction.
func (e *Evidence) Document() preprocess.Document {
	return preprocess.Document{
		Title:         e.Title,
		Description:   deref(e.Description),
		EvidenceType:  deref(e.EvidenceType),
		SourceType:    deref(e.SourceType),
		ExtractedText: e.ExtractedText,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
