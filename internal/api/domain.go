package api

import (
	"context"

	"github.com/auditstack/attest/internal/classifier"
	"github.com/auditstack/attest/internal/controls"
	"github.com/auditstack/attest/internal/embeddings"
	"github.com/auditstack/attest/internal/evidence"
	"github.com/auditstack/attest/internal/organizations"
	"github.com/auditstack/attest/internal/provenance"
	"github.com/auditstack/attest/internal/queue"
	"github.com/auditstack/attest/internal/tasks"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Organizations organizations.System
	Controls      controls.System
	Evidence      evidence.System
	Tasks         tasks.System
	Provenance    provenance.Store
	Embeddings    embeddings.Store
	Outputs       classifier.OutputStore
	Agent         *classifier.Agent
	Classifier    *classifier.Handler
}

// NewDomain creates all domain systems from the API runtime and registers the
// background job handlers on the queue.
func NewDomain(runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	orgSystem := organizations.New(db, runtime.Logger)
	controlSystem := controls.New(db, runtime.Logger)
	taskSystem := tasks.New(db, runtime.Logger, runtime.Pagination)
	provStore := provenance.NewStore(db, runtime.Logger)
	embStore := embeddings.NewStore(db, runtime.Logger)
	outputStore := classifier.NewOutputStore(db, runtime.Logger)

	evidenceSystem := evidence.New(
		db,
		runtime.Storage,
		runtime.Logger,
		runtime.Pagination,
	)

	autoCreator := tasks.NewAutoCreator(
		taskSystem,
		queueEnqueuer{runtime.Queue},
		runtime.Logger,
	)

	agent := classifier.NewAgent(
		evidenceSystem,
		controlSystem,
		outputStore,
		autoCreator,
		embStore,
		provStore,
		nil,
		classifier.Options{
			CandidateLimit: runtime.Classifier.CandidateLimit,
			CacheDistance:  runtime.Classifier.CacheDistance,
		},
		runtime.Logger,
	)

	runtime.Queue.Register(classifier.JobClassifyEvidence, agent.JobHandler())
	runtime.Queue.Register(tasks.JobProcessTask, tasks.ProcessJobHandler(taskSystem, runtime.Logger))

	return &Domain{
		Organizations: orgSystem,
		Controls:      controlSystem,
		Evidence:      evidenceSystem,
		Tasks:         taskSystem,
		Provenance:    provStore,
		Embeddings:    embStore,
		Outputs:       outputStore,
		Agent:         agent,
		Classifier:    classifier.NewHandler(agent, evidenceSystem, runtime.Queue, runtime.Logger),
	}
}

// queueEnqueuer adapts the queue system to the narrow Enqueuer interface the
// task auto-creator depends on.
type queueEnqueuer struct {
	queue queue.System
}

func (q queueEnqueuer) Enqueue(ctx context.Context, name string, args any) error {
	_, err := q.queue.Enqueue(ctx, name, args)
	return err
}
