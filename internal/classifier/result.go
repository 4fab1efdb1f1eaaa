package classifier

// Result is the classification payload returned to callers.
type Result struct {
	EvidenceID       string   `json:"evidence_id"`
	PrimaryControls  []string `json:"primary_controls"`
	Confidence       float64  `json:"confidence"`
	PipelineRunID    string   `json:"pipeline_run_id"`
	AgentRunID       string   `json:"agent_run_id"`
	Stub             bool     `json:"stub"`
	CacheHit         bool     `json:"cache_hit"`
	Similarity       *float64 `json:"similarity,omitempty"`
	SourceEvidenceID string   `json:"source_evidence_id,omitempty"`
}
