package classifier

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/embeddings"
	"github.com/auditstack/attest/internal/evidence"
)

// CacheDistanceThreshold is the maximum L2 distance between normalized
// vectors for a nearest-neighbor cache hit.
const CacheDistanceThreshold = 0.30

// Cache reuses prior classifications for identical or near-identical
// evidence payloads: exact content-hash matches first, then embedding
// nearest-neighbor within the distance threshold.
type Cache struct {
	embeddings embeddings.Store
	evidence   EvidenceStore
	outputs    OutputStore
	threshold  float64
}

// NewCache creates a classification cache over the given stores. A
// non-positive threshold falls back to CacheDistanceThreshold.
func NewCache(emb embeddings.Store, ev EvidenceStore, outputs OutputStore, threshold float64) *Cache {
	if threshold <= 0 {
		threshold = CacheDistanceThreshold
	}

	return &Cache{
		embeddings: emb,
		evidence:   ev,
		outputs:    outputs,
		threshold:  threshold,
	}
}

// FindCached returns a prior classification wrapped with cache metadata, or
// nil on a miss. A matched embedding whose source classification cannot be
// resolved is a miss, not an error.
func (c *Cache) FindCached(ctx context.Context, text, contentHash string) (*evidence.Classification, error) {
	neighbor, err := c.embeddings.FindByHash(ctx, contentHash)
	if err != nil && !errors.Is(err, embeddings.ErrNoEmbedding) {
		return nil, err
	}
	if neighbor != nil {
		hit, err := c.resolve(ctx, neighbor.EvidenceID, 1.0)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			return hit, nil
		}
	}

	neighbor, err = c.embeddings.Nearest(ctx, text, c.threshold)
	if err != nil {
		if errors.Is(err, embeddings.ErrNoEmbedding) {
			return nil, nil
		}
		return nil, err
	}

	return c.resolve(ctx, neighbor.EvidenceID, max(0.0, 1.0-neighbor.Distance))
}

// StoreEmbedding records the embedding for future cache hits. Called only
// after a full non-cached run completes.
func (c *Cache) StoreEmbedding(ctx context.Context, evidenceID uuid.UUID, text, contentHash string) error {
	return c.embeddings.Upsert(ctx, evidenceID, text, contentHash)
}

// resolve builds the cached classification from the source evidence: its
// ai_classification payload when present, else its latest classifier output.
func (c *Cache) resolve(ctx context.Context, sourceID uuid.UUID, similarity float64) (*evidence.Classification, error) {
	source, err := c.evidence.Find(ctx, sourceID)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var classification evidence.Classification
	if source.Classification != nil {
		classification = *source.Classification
	} else {
		latest, err := c.outputs.LatestForEvidence(ctx, sourceID)
		if err != nil {
			if errors.Is(err, ErrNoOutput) {
				return nil, nil
			}
			return nil, err
		}
		classification = evidence.Classification{
			PrimaryControls: latest.PrimaryControls,
			Confidence:      latest.Confidence,
			PipelineRunID:   latest.PipelineRunID.String(),
			Stub:            false,
		}
	}

	// A source payload without primary controls still serializes as [].
	if classification.PrimaryControls == nil {
		classification.PrimaryControls = []string{}
	}

	classification.CacheHit = true
	classification.Similarity = &similarity
	classification.SourceEvidenceID = source.ID.String()

	return &classification, nil
}
