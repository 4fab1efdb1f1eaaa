package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/lifecycle"
)

type fakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	// insertion order of pending job IDs
	pending []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uuid.UUID]*Job{}}
}

func (f *fakeStore) insert(ctx context.Context, name string, args json.RawMessage) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := &Job{
		ID:        uuid.New(),
		Name:      name,
		Args:      args,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	f.pending = append(f.pending, job.ID)
	return job, nil
}

func (f *fakeStore) find(ctx context.Context, id uuid.UUID) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *job
	return &out, nil
}

func (f *fakeStore) claim(ctx context.Context) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil, nil
	}
	id := f.pending[0]
	f.pending = f.pending[1:]

	job := f.jobs[id]
	job.Status = StatusRunning
	out := *job
	return &out, nil
}

func (f *fakeStore) markFinished(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := f.jobs[id]
	job.Status = StatusFinished
	job.Result = result
	return nil
}

func (f *fakeStore) markFailed(ctx context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := f.jobs[id]
	job.Status = StatusFailed
	job.Error = &msg
	return nil
}

func (f *fakeStore) requeueStale(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for id, job := range f.jobs {
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.StartedAt = nil
			f.pending = append(f.pending, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) status(id uuid.UUID) (string, json.RawMessage, *string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := f.jobs[id]
	return job.Status, job.Result, job.Error
}

func newTestSystem(store *fakeStore) *system {
	return &system{
		store:        store,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:      1,
		pollInterval: 5 * time.Millisecond,
		registry:     map[string]HandlerFunc{},
	}
}

func TestProcessFinishesJobWithResult(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestSystem(store)

	s.Register("classify", func(ctx context.Context, job *Job) (any, error) {
		return map[string]any{"confidence": 0.9}, nil
	})

	job, err := s.Enqueue(ctx, "classify", map[string]string{"evidence_id": "abc"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if job.Status != StatusPending {
		t.Fatalf("enqueued status = %q, want %q", job.Status, StatusPending)
	}

	claimed, err := store.claim(ctx)
	if err != nil {
		t.Fatalf("claim() error = %v", err)
	}
	if claimed.Status != StatusRunning {
		t.Fatalf("claimed status = %q, want %q", claimed.Status, StatusRunning)
	}

	s.process(ctx, claimed)

	status, result, jobErr := store.status(job.ID)
	if status != StatusFinished {
		t.Errorf("status = %q, want %q", status, StatusFinished)
	}
	if jobErr != nil {
		t.Errorf("error = %q, want nil", *jobErr)
	}

	var decoded map[string]float64
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}
	if decoded["confidence"] != 0.9 {
		t.Errorf("result confidence = %v, want 0.9", decoded["confidence"])
	}
}

func TestProcessFailsJobOnHandlerError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestSystem(store)

	s.Register("classify", func(ctx context.Context, job *Job) (any, error) {
		return nil, errors.New("evidence not found")
	})

	job, _ := s.Enqueue(ctx, "classify", nil)
	claimed, _ := store.claim(ctx)
	s.process(ctx, claimed)

	status, _, jobErr := store.status(job.ID)
	if status != StatusFailed {
		t.Errorf("status = %q, want %q", status, StatusFailed)
	}
	if jobErr == nil || *jobErr != "evidence not found" {
		t.Errorf("error = %v, want %q", jobErr, "evidence not found")
	}
}

func TestProcessFailsJobWithoutHandler(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestSystem(store)

	job, _ := s.Enqueue(ctx, "unregistered", nil)
	claimed, _ := store.claim(ctx)
	s.process(ctx, claimed)

	status, _, jobErr := store.status(job.ID)
	if status != StatusFailed {
		t.Errorf("status = %q, want %q", status, StatusFailed)
	}
	if jobErr == nil {
		t.Fatal("expected error message on job")
	}
	if !strings.Contains(*jobErr, ErrNoHandler.Error()) || !strings.Contains(*jobErr, "unregistered") {
		t.Errorf("error = %q, want it to name the missing handler", *jobErr)
	}
}

func TestProcessFailsJobOnUnmarshalableResult(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestSystem(store)

	s.Register("classify", func(ctx context.Context, job *Job) (any, error) {
		return make(chan int), nil
	})

	job, _ := s.Enqueue(ctx, "classify", nil)
	claimed, _ := store.claim(ctx)
	s.process(ctx, claimed)

	status, _, jobErr := store.status(job.ID)
	if status != StatusFailed {
		t.Errorf("status = %q, want %q", status, StatusFailed)
	}
	if jobErr == nil || !strings.Contains(*jobErr, "marshal job result") {
		t.Errorf("error = %v, want marshal failure", jobErr)
	}
}

func TestStartRequeuesStaleRunningJobs(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := newTestSystem(store)

	done := make(chan struct{})
	s.Register("classify", func(ctx context.Context, job *Job) (any, error) {
		defer close(done)
		return "ok", nil
	})

	// A job stuck running, as left behind by an interrupted process.
	job, _ := store.insert(ctx, "classify", nil)
	store.jobs[job.ID].Status = StatusRunning
	store.pending = nil

	lc := lifecycle.New()
	if err := s.Start(lc); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stale job was never reclaimed and processed")
	}

	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	status, _, _ := store.status(job.ID)
	if status != StatusFinished {
		t.Errorf("status = %q, want %q", status, StatusFinished)
	}
}
