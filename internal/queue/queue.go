package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/auditstack/attest/pkg/lifecycle"
	"github.com/auditstack/attest/pkg/repository"
)

const projection = `
	id, name, args, status, result, error,
	started_at, finished_at, created_at, updated_at`

// System manages job persistence, handler registration, and the polling
// worker pool.
type System interface {
	Handler() *Handler

	// Enqueue inserts a pending job. Args are marshaled to JSON.
	Enqueue(ctx context.Context, name string, args any) (*Job, error)
	Find(ctx context.Context, id uuid.UUID) (*Job, error)

	// Register binds a handler to a job name. Register before Start.
	Register(name string, fn HandlerFunc)

	// Start launches the worker pool and ties it to the lifecycle.
	Start(lc *lifecycle.Coordinator) error
}

// jobStore isolates job persistence so claiming and dispatch can run against
// any backing implementation.
type jobStore interface {
	insert(ctx context.Context, name string, args json.RawMessage) (*Job, error)
	find(ctx context.Context, id uuid.UUID) (*Job, error)
	claim(ctx context.Context) (*Job, error)
	markFinished(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	markFailed(ctx context.Context, id uuid.UUID, msg string) error
	requeueStale(ctx context.Context) (int64, error)
}

type system struct {
	store        jobStore
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration

	mu       sync.RWMutex
	registry map[string]HandlerFunc
}

// New creates a queue system with the given worker count and poll interval.
func New(db *sql.DB, logger *slog.Logger, workers int, pollInterval time.Duration) System {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &system{
		store:        &sqlStore{db: db},
		logger:       logger.With("system", "queue"),
		workers:      workers,
		pollInterval: pollInterval,
		registry:     map[string]HandlerFunc{},
	}
}

func (s *system) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *system) Register(name string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[name] = fn
}

func (s *system) handlerFor(name string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.registry[name]
	return fn, ok
}

func (s *system) Enqueue(ctx context.Context, name string, args any) (*Job, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal job args: %w", err)
	}

	job, err := s.store.insert(ctx, name, raw)
	if err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", name, err)
	}

	s.logger.Info("job enqueued", "id", job.ID, "name", name)
	return job, nil
}

func (s *system) Find(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.store.find(ctx, id)
}

func (s *system) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting queue workers", "workers", s.workers, "poll_interval", s.pollInterval)

	ctx := lc.Context()

	// Jobs left running by an interrupted process would otherwise never be
	// claimed again.
	requeued, err := s.store.requeueStale(ctx)
	if err != nil {
		return fmt.Errorf("requeue stale jobs: %w", err)
	}
	if requeued > 0 {
		s.logger.Warn("requeued stale running jobs", "count", requeued)
	}

	g, gctx := errgroup.WithContext(ctx)
	for range s.workers {
		g.Go(func() error {
			s.work(gctx)
			return nil
		})
	}

	lc.OnShutdown(func() {
		<-ctx.Done()
		if err := g.Wait(); err != nil {
			s.logger.Error("queue worker error", "error", err)
		}
		s.logger.Info("queue workers stopped")
	})

	return nil
}

func (s *system) work(ctx context.Context) {
	for {
		job, err := s.store.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("job claim failed", "error", err)
		}

		if job != nil {
			s.process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *system) process(ctx context.Context, job *Job) {
	fn, ok := s.handlerFor(job.Name)
	if !ok {
		s.fail(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.Name))
		return
	}

	result, err := fn(ctx, job)
	if err != nil {
		s.fail(ctx, job, err)
		return
	}

	s.finish(ctx, job, result)
}

func (s *system) finish(ctx context.Context, job *Job, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.fail(ctx, job, fmt.Errorf("marshal job result: %w", err))
		return
	}

	if err := s.store.markFinished(ctx, job.ID, raw); err != nil {
		s.logger.Error("job finish update failed", "id", job.ID, "error", err)
		return
	}

	s.logger.Info("job finished", "id", job.ID, "name", job.Name)
}

func (s *system) fail(ctx context.Context, job *Job, jobErr error) {
	msg := jobErr.Error()

	if err := s.store.markFailed(ctx, job.ID, msg); err != nil {
		s.logger.Error("job fail update failed", "id", job.ID, "error", err)
		return
	}

	s.logger.Warn("job failed", "id", job.ID, "name", job.Name, "error", msg)
}

// sqlStore persists jobs in Postgres.
type sqlStore struct {
	db *sql.DB
}

func (s *sqlStore) insert(ctx context.Context, name string, args json.RawMessage) (*Job, error) {
	q := fmt.Sprintf(`
		INSERT INTO jobs(id, name, args, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING %s`, projection)

	job, err := repository.QueryOne(ctx, s.db, q, []any{uuid.New(), name, args}, scanJob)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *sqlStore) find(ctx context.Context, id uuid.UUID) (*Job, error) {
	q := fmt.Sprintf("SELECT %s FROM jobs WHERE id = $1", projection)

	job, err := repository.QueryOne(ctx, s.db, q, []any{id}, scanJob)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}

	return &job, nil
}

// claim picks the oldest pending job and marks it running. SKIP LOCKED keeps
// claims exclusive across workers without blocking.
func (s *sqlStore) claim(ctx context.Context) (*Job, error) {
	q := fmt.Sprintf(`
		UPDATE jobs
		SET status = 'running', started_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, projection)

	job, err := repository.QueryOne(ctx, s.db, q, nil, scanJob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &job, nil
}

func (s *sqlStore) markFinished(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	q := `
		UPDATE jobs
		SET status = 'finished', result = $2, finished_at = now(), updated_at = now()
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, q, id, result)
	return err
}

func (s *sqlStore) markFailed(ctx context.Context, id uuid.UUID, msg string) error {
	q := `
		UPDATE jobs
		SET status = 'failed', error = $2, finished_at = now(), updated_at = now()
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, q, id, msg)
	return err
}

// requeueStale resets jobs left running by an interrupted process back to
// pending. Called once at startup, before any worker polls.
func (s *sqlStore) requeueStale(ctx context.Context) (int64, error) {
	q := `
		UPDATE jobs
		SET status = 'pending', started_at = NULL, updated_at = now()
		WHERE status = 'running'`

	result, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func scanJob(sc repository.Scanner) (Job, error) {
	var j Job
	err := sc.Scan(
		&j.ID, &j.Name, &j.Args, &j.Status, &j.Result, &j.Error,
		&j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}
