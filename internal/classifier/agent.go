// Package classifier implements the deterministic evidence classification
// pipeline: preprocessing, cache lookup, full-text candidate retrieval,
// ranking, thresholding, validation, persistence, task auto-creation, and
// embedding storage — all recorded as a replayable provenance trail.
package classifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/controls"
	"github.com/auditstack/attest/internal/embeddings"
	"github.com/auditstack/attest/internal/evidence"
	"github.com/auditstack/attest/internal/preprocess"
	"github.com/auditstack/attest/internal/provenance"
	"github.com/auditstack/attest/internal/tasks"
)

const (
	// AgentName and AgentVersion identify the classifier in provenance rows.
	AgentName    = "evidence-classifier"
	AgentVersion = "0.2.0-fts"

	// PipelineType labels every pipeline run created by the agent.
	PipelineType = "evidence_classification"

	// ScoreThreshold is the minimum FTS rank for a candidate to count.
	ScoreThreshold = 0.01

	// CandidateLimit bounds candidate retrieval per run.
	CandidateLimit = 5

	// GenericControl is the fallback primary when no candidate qualifies.
	GenericControl = "control:GENERIC"

	// MaxPrimaryControls caps how many references a full run selects.
	MaxPrimaryControls = 3
)

// StepNames is the ordered list of pipeline steps, recorded in run details.
var StepNames = []string{
	"preprocessing",
	"cache_lookup",
	"candidate_retrieval",
	"control_ranking",
	"thresholding",
	"validation",
	"persistence",
	"auto_task_creation",
	"embedding_store",
}

// Options tunes the pipeline. Zero values fall back to the package defaults.
type Options struct {
	CandidateLimit int
	CacheDistance  float64
}

// EvidenceStore is the slice of the evidence domain the pipeline needs.
type EvidenceStore interface {
	Find(ctx context.Context, id uuid.UUID) (*evidence.Evidence, error)
	UpdateClassification(ctx context.Context, id uuid.UUID, c evidence.Classification) error
}

// CandidateSearcher ranks controls against evidence text.
type CandidateSearcher interface {
	TopCandidates(ctx context.Context, text string, limit int) ([]controls.Candidate, error)
}

// TaskCreator auto-creates tasks for matched controls.
type TaskCreator interface {
	CreateForControls(ctx context.Context, ev *evidence.Evidence, matched []controls.Control) ([]tasks.Task, error)
}

// Agent runs the classification pipeline for one evidence item at a time.
type Agent struct {
	evidence   EvidenceStore
	search     CandidateSearcher
	outputs    OutputStore
	taskmaker  TaskCreator
	embeddings embeddings.Store
	provenance provenance.Store
	cache      *Cache
	validator  Validator
	limit      int
	logger     *slog.Logger
}

// NewAgent assembles the pipeline from its component stores.
func NewAgent(
	ev EvidenceStore,
	search CandidateSearcher,
	outputs OutputStore,
	taskmaker TaskCreator,
	emb embeddings.Store,
	prov provenance.Store,
	validator Validator,
	opts Options,
	logger *slog.Logger,
) *Agent {
	if validator == nil {
		validator = StubValidator{}
	}
	if opts.CandidateLimit < 1 {
		opts.CandidateLimit = CandidateLimit
	}

	return &Agent{
		evidence:   ev,
		search:     search,
		outputs:    outputs,
		taskmaker:  taskmaker,
		embeddings: emb,
		provenance: prov,
		cache:      NewCache(emb, ev, outputs, opts.CacheDistance),
		validator:  validator,
		limit:      opts.CandidateLimit,
		logger:     logger.With("system", "classifier"),
	}
}

// Classify runs the full pipeline for the given evidence. Any failure after
// the run starts marks the pipeline run failed with the error message and
// the error is returned.
func (a *Agent) Classify(ctx context.Context, evidenceID uuid.UUID) (*Result, error) {
	ev, err := a.evidence.Find(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	rec := provenance.NewRecorder(
		a.provenance, PipelineType, AgentName, AgentVersion,
		&ev.ID, &ev.OrganizationID,
	)

	_, err = rec.Start(ctx, StepNames, provenance.Details{
		"cache_hit":       false,
		"model":           map[string]any{"name": embeddings.ModelName, "provider": "local", "version": "1.0"},
		"prompt_template": map[string]any{"name": "classifier-default", "version": "1.0"},
	})
	if err != nil {
		return nil, err
	}

	result, err := a.run(ctx, rec, ev)
	if err != nil {
		if finErr := rec.Finish(ctx, provenance.StatusFailed, provenance.Details{"error": err.Error()}); finErr != nil {
			a.logger.Error("failed run finalization failed", "run", rec.Run().ID, "error", finErr)
		}
		return nil, err
	}

	return result, nil
}

func (a *Agent) run(ctx context.Context, rec *provenance.Recorder, ev *evidence.Evidence) (*Result, error) {
	runID := rec.Run().ID.String()
	agentRunID := rec.AgentRun().ID.String()

	// 1) Preprocessing
	text, hints := preprocess.Canonical(ev.Document())
	contentHash := preprocess.ContentHash(text)

	err := a.step(ctx, rec, "preprocessing",
		provenance.Details{
			"evidence_id": ev.ID.String(),
			"has_text":    text != "",
			"hint_count":  len(hints),
		},
		func() (provenance.Details, error) {
			return provenance.Details{"content_hash": contentHash, "text_chars": len(text)}, nil
		})
	if err != nil {
		return nil, err
	}

	if err := rec.EmitEvent(ctx, "EvidencePreprocessed", provenance.Details{
		"evidence_id":     ev.ID.String(),
		"pipeline_run_id": runID,
		"content_hash":    contentHash,
		"text_chars":      len(text),
	}); err != nil {
		return nil, err
	}

	// 2) Cache lookup: a hit short-circuits the pipeline.
	var cached *evidence.Classification
	err = a.step(ctx, rec, "cache_lookup",
		provenance.Details{"content_hash": contentHash},
		func() (provenance.Details, error) {
			var err error
			cached, err = a.cache.FindCached(ctx, text, contentHash)
			if err != nil {
				return nil, err
			}
			if cached != nil {
				return provenance.Details{
					"cache_hit":          true,
					"similarity":         cached.Similarity,
					"source_evidence_id": cached.SourceEvidenceID,
				}, nil
			}
			return provenance.Details{"cache_hit": false}, nil
		})
	if err != nil {
		return nil, err
	}

	if cached != nil {
		return a.completeFromCache(ctx, rec, ev, cached, runID, agentRunID)
	}

	// 3) Candidate retrieval
	var candidates []controls.Candidate
	err = a.step(ctx, rec, "candidate_retrieval",
		provenance.Details{"text_chars": len(text), "limit": a.limit},
		func() (provenance.Details, error) {
			var err error
			candidates, err = a.search.TopCandidates(ctx, text, a.limit)
			if err != nil {
				return nil, err
			}
			return provenance.Details{
				"candidate_count": len(candidates),
				"candidates":      candidateSummaries(candidates),
			}, nil
		})
	if err != nil {
		return nil, err
	}

	// 4) Ranking + thresholding
	selection := rank(candidates)

	err = a.step(ctx, rec, "control_ranking",
		provenance.Details{"threshold": ScoreThreshold},
		func() (provenance.Details, error) {
			return provenance.Details{
				"selected_controls": selection.primaries,
				"matched_count":     len(selection.matched),
			}, nil
		})
	if err != nil {
		return nil, err
	}

	err = a.step(ctx, rec, "thresholding",
		provenance.Details{"threshold": ScoreThreshold},
		func() (provenance.Details, error) {
			return provenance.Details{
				"passed":              !selection.fallback,
				"fallback_to_generic": selection.fallback,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	// 5) Validation
	confidence := selection.confidence
	err = a.step(ctx, rec, "validation",
		provenance.Details{
			"primary_controls":   selection.primaries,
			"initial_confidence": selection.confidence,
		},
		func() (provenance.Details, error) {
			validated, justification, err := a.validator.Validate(ctx, text, selection.primaries, selection.confidence)
			if err != nil {
				return nil, err
			}
			confidence = validated
			return provenance.Details{
				"validated_confidence": validated,
				"justification":        justification,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	// 6) Persistence
	err = a.step(ctx, rec, "persistence",
		provenance.Details{"primary_controls": selection.primaries, "confidence": confidence},
		func() (provenance.Details, error) {
			out := &Output{
				EvidenceID:      ev.ID,
				PipelineRunID:   rec.Run().ID,
				PrimaryControls: selection.primaries,
				Confidence:      confidence,
				RawOutput:       selection.raw,
			}
			if err := a.outputs.Create(ctx, out); err != nil {
				return nil, err
			}
			return provenance.Details{"primary_controls": selection.primaries, "confidence": confidence}, nil
		})
	if err != nil {
		return nil, err
	}

	if err := rec.EmitEvent(ctx, "ClassificationCompleted", provenance.Details{
		"evidence_id":      ev.ID.String(),
		"pipeline_run_id":  runID,
		"primary_controls": selection.primaries,
		"confidence":       confidence,
	}); err != nil {
		return nil, err
	}

	// 7) Task auto-creation for real controls only
	var createdIDs []string
	err = a.step(ctx, rec, "auto_task_creation",
		provenance.Details{"control_count": len(selection.matched)},
		func() (provenance.Details, error) {
			created, err := a.taskmaker.CreateForControls(ctx, ev, selection.matched)
			if err != nil {
				return nil, err
			}
			createdIDs = make([]string, 0, len(created))
			for _, t := range created {
				createdIDs = append(createdIDs, t.ID.String())
			}
			return provenance.Details{"created_task_ids": createdIDs}, nil
		})
	if err != nil {
		return nil, err
	}

	if err := rec.Finish(ctx, provenance.StatusCompleted, provenance.Details{
		"result": map[string]any{
			"primary_controls": selection.primaries,
			"confidence":       confidence,
			"created_tasks":    createdIDs,
		},
	}); err != nil {
		return nil, err
	}

	// 8) Store embedding for future cache hits
	err = a.step(ctx, rec, "embedding_store",
		provenance.Details{"content_hash": contentHash},
		func() (provenance.Details, error) {
			if err := a.cache.StoreEmbedding(ctx, ev.ID, text, contentHash); err != nil {
				return nil, err
			}
			return provenance.Details{"content_hash": contentHash, "stored": true}, nil
		})
	if err != nil {
		return nil, err
	}

	if err := rec.EmitEvent(ctx, "EmbeddingComputed", provenance.Details{
		"evidence_id":     ev.ID.String(),
		"pipeline_run_id": runID,
		"content_hash":    contentHash,
	}); err != nil {
		return nil, err
	}

	classification := evidence.Classification{
		PrimaryControls: selection.primaries,
		Confidence:      confidence,
		PipelineRunID:   runID,
		AgentRunID:      agentRunID,
		CreatedTasks:    createdIDs,
		Stub:            false,
		CacheHit:        false,
		ContentHash:     contentHash,
	}
	if err := a.evidence.UpdateClassification(ctx, ev.ID, classification); err != nil {
		return nil, err
	}

	a.logger.Info("evidence classified",
		"evidence", ev.ID,
		"primary_controls", selection.primaries,
		"confidence", confidence,
	)

	return &Result{
		EvidenceID:      ev.ID.String(),
		PrimaryControls: selection.primaries,
		Confidence:      confidence,
		PipelineRunID:   runID,
		AgentRunID:      agentRunID,
		Stub:            false,
		CacheHit:        false,
	}, nil
}

// completeFromCache finalizes a cache-hit run: no classifier output, no
// embedding write, run completed after the cache_lookup step.
func (a *Agent) completeFromCache(
	ctx context.Context,
	rec *provenance.Recorder,
	ev *evidence.Evidence,
	cached *evidence.Classification,
	runID, agentRunID string,
) (*Result, error) {
	if err := rec.Finish(ctx, provenance.StatusCompleted, provenance.Details{
		"cache_hit":          true,
		"similarity":         cached.Similarity,
		"source_evidence_id": cached.SourceEvidenceID,
	}); err != nil {
		return nil, err
	}

	classification := *cached
	classification.EvidenceID = ev.ID.String()
	classification.PipelineRunID = runID
	classification.AgentRunID = agentRunID
	classification.Stub = false

	if err := a.evidence.UpdateClassification(ctx, ev.ID, classification); err != nil {
		return nil, err
	}

	a.logger.Info("evidence classified from cache",
		"evidence", ev.ID,
		"source", cached.SourceEvidenceID,
	)

	return &Result{
		EvidenceID:       ev.ID.String(),
		PrimaryControls:  classification.PrimaryControls,
		Confidence:       classification.Confidence,
		PipelineRunID:    runID,
		AgentRunID:       agentRunID,
		Stub:             false,
		CacheHit:         true,
		Similarity:       classification.Similarity,
		SourceEvidenceID: classification.SourceEvidenceID,
	}, nil
}

// step records one pipeline step around fn: running with the input snapshot,
// then completed with fn's output snapshot, or failed with fn's error.
func (a *Agent) step(
	ctx context.Context,
	rec *provenance.Recorder,
	name string,
	input provenance.Details,
	fn func() (provenance.Details, error),
) error {
	log, err := rec.StartStep(ctx, name, input)
	if err != nil {
		return err
	}

	output, err := fn()
	if err != nil {
		if failErr := rec.FailStep(ctx, log, err); failErr != nil {
			a.logger.Error("step failure record failed", "step", name, "error", failErr)
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	return rec.CompleteStep(ctx, log, output)
}

// selection is the outcome of ranking and thresholding candidates.
type selection struct {
	primaries  []string
	confidence float64
	matched    []controls.Control
	fallback   bool
	raw        map[string]any
}

// rank applies the threshold and picks primaries. No qualifying candidate
// falls back to the generic control so the pipeline still completes.
func rank(candidates []controls.Candidate) selection {
	qualified := make([]controls.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= ScoreThreshold {
			qualified = append(qualified, c)
		}
	}

	if len(qualified) == 0 {
		return selection{
			primaries:  []string{GenericControl},
			confidence: 0.8,
			matched:    []controls.Control{},
			fallback:   true,
			raw: map[string]any{
				"reason":          "No FTS candidates above threshold; fallback to GENERIC.",
				"threshold":       ScoreThreshold,
				"candidate_count": len(candidates),
			},
		}
	}

	top := qualified
	if len(top) > MaxPrimaryControls {
		top = top[:MaxPrimaryControls]
	}

	primaries := make([]string, 0, len(top))
	matched := make([]controls.Control, 0, len(top))
	for _, c := range top {
		primaries = append(primaries, c.Control.Reference)
		matched = append(matched, c.Control)
	}

	return selection{
		primaries:  primaries,
		confidence: min(0.95, 0.5+qualified[0].Score*0.5),
		matched:    matched,
		fallback:   false,
		raw: map[string]any{
			"threshold":  ScoreThreshold,
			"candidates": candidateDetails(candidates),
		},
	}
}

func candidateSummaries(candidates []controls.Candidate) []map[string]any {
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"reference": c.Control.Reference,
			"score":     c.Score,
		})
	}
	return out
}

func candidateDetails(candidates []controls.Candidate) []map[string]any {
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"id":        c.Control.ID.String(),
			"reference": c.Control.Reference,
			"score":     c.Score,
		})
	}
	return out
}
