package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/queue"
)

// JobClassifyEvidence is the queue job name for async classification.
const JobClassifyEvidence = "classify_evidence"

// JobArgs is the argument payload for classification jobs.
type JobArgs struct {
	EvidenceID string `json:"evidence_id"`
}

// JobHandler returns the queue handler that runs the pipeline for a job's
// evidence. The classification result becomes the job result.
func (a *Agent) JobHandler() queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (any, error) {
		var args JobArgs
		if err := json.Unmarshal(job.Args, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}

		id, err := uuid.Parse(args.EvidenceID)
		if err != nil {
			return nil, fmt.Errorf("%w: evidence_id %q", ErrInvalidRequest, args.EvidenceID)
		}

		return a.Classify(ctx, id)
	}
}
