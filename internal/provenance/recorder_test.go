package provenance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/provenance"
)

type fakeStore struct {
	runs     []*provenance.PipelineRun
	agents   []*provenance.AgentRun
	steps    []*provenance.StepLog
	events   []*provenance.Event
	updates  []string
	failNext error
}

func (f *fakeStore) Handler() *provenance.Handler { return nil }

func (f *fakeStore) CreatePipelineRun(_ context.Context, run *provenance.PipelineRun) error {
	if f.failNext != nil {
		return f.failNext
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) UpdatePipelineRun(_ context.Context, run *provenance.PipelineRun) error {
	f.updates = append(f.updates, "pipeline:"+run.Status)
	return nil
}

func (f *fakeStore) CreateAgentRun(_ context.Context, run *provenance.AgentRun) error {
	f.agents = append(f.agents, run)
	return nil
}

func (f *fakeStore) UpdateAgentRun(_ context.Context, run *provenance.AgentRun) error {
	f.updates = append(f.updates, "agent:"+run.Status)
	return nil
}

func (f *fakeStore) CreateStepLog(_ context.Context, step *provenance.StepLog) error {
	f.steps = append(f.steps, step)
	return nil
}

func (f *fakeStore) UpdateStepLog(_ context.Context, step *provenance.StepLog) error {
	f.updates = append(f.updates, "step:"+step.StepName+":"+step.Status)
	return nil
}

func (f *fakeStore) CreateEvent(_ context.Context, event *provenance.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) FindRun(context.Context, uuid.UUID) (*provenance.PipelineRun, error) {
	return nil, provenance.ErrNotFound
}

func (f *fakeStore) RunsForEvidence(context.Context, uuid.UUID) ([]provenance.PipelineRun, error) {
	return nil, nil
}

func (f *fakeStore) StepsForRun(context.Context, uuid.UUID) ([]provenance.StepLog, error) {
	return nil, nil
}

func (f *fakeStore) EventsForEvidence(context.Context, uuid.UUID) ([]provenance.Event, error) {
	return nil, nil
}

func newRecorder(store provenance.Store) (*provenance.Recorder, uuid.UUID) {
	evidenceID := uuid.New()
	orgID := uuid.New()
	rec := provenance.NewRecorder(
		store,
		"evidence_classification",
		"evidence-classifier",
		"0.2.0-fts",
		&evidenceID,
		&orgID,
	)
	return rec, evidenceID
}

func TestRecorderStartSeedsDetails(t *testing.T) {
	store := &fakeStore{}
	rec, _ := newRecorder(store)

	steps := []string{"preprocessing", "cache_lookup"}
	run, err := rec.Start(context.Background(), steps, provenance.Details{"cache_hit": false, "extra": 1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if run.Status != provenance.StatusRunning {
		t.Errorf("status = %q, want running", run.Status)
	}
	if run.PipelineType != "evidence_classification" {
		t.Errorf("pipeline_type = %q", run.PipelineType)
	}
	if run.Details["agent"] != "evidence-classifier" {
		t.Errorf("details agent = %v", run.Details["agent"])
	}
	if run.Details["version"] != "0.2.0-fts" {
		t.Errorf("details version = %v", run.Details["version"])
	}
	if run.Details["cache_hit"] != false {
		t.Errorf("details cache_hit = %v, want false", run.Details["cache_hit"])
	}
	if run.Details["extra"] != 1 {
		t.Errorf("initial details not merged: %v", run.Details)
	}

	if len(store.agents) != 1 {
		t.Fatalf("agent runs = %d, want 1", len(store.agents))
	}
	agent := store.agents[0]
	if agent.PipelineRunID != run.ID {
		t.Error("agent run not linked to pipeline run")
	}
	if agent.Status != provenance.StatusRunning {
		t.Errorf("agent status = %q, want running", agent.Status)
	}
}

func TestRecorderStepLifecycle(t *testing.T) {
	store := &fakeStore{}
	rec, _ := newRecorder(store)

	if _, err := rec.Start(context.Background(), nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	step, err := rec.StartStep(context.Background(), "preprocessing", provenance.Details{"has_text": true})
	if err != nil {
		t.Fatalf("start step failed: %v", err)
	}
	if step.Status != provenance.StatusRunning {
		t.Errorf("step status = %q, want running", step.Status)
	}

	if err := rec.CompleteStep(context.Background(), step, provenance.Details{"text_chars": 42}); err != nil {
		t.Fatalf("complete step failed: %v", err)
	}
	if step.Status != provenance.StatusCompleted {
		t.Errorf("step status = %q, want completed", step.Status)
	}
	if step.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if step.OutputSnapshot["text_chars"] != 42 {
		t.Errorf("output snapshot = %v", step.OutputSnapshot)
	}

	failing, err := rec.StartStep(context.Background(), "persistence", nil)
	if err != nil {
		t.Fatalf("start step failed: %v", err)
	}
	if err := rec.FailStep(context.Background(), failing, errors.New("insert refused")); err != nil {
		t.Fatalf("fail step failed: %v", err)
	}
	if failing.Status != provenance.StatusFailed {
		t.Errorf("step status = %q, want failed", failing.Status)
	}
	if failing.Error == nil || *failing.Error != "insert refused" {
		t.Errorf("step error = %v", failing.Error)
	}
}

func TestRecorderStepBeforeStart(t *testing.T) {
	rec, _ := newRecorder(&fakeStore{})

	if _, err := rec.StartStep(context.Background(), "preprocessing", nil); !errors.Is(err, provenance.ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
	if err := rec.Finish(context.Background(), provenance.StatusCompleted, nil); !errors.Is(err, provenance.ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestRecorderFinishMergesDetails(t *testing.T) {
	store := &fakeStore{}
	rec, _ := newRecorder(store)

	run, err := rec.Start(context.Background(), []string{"preprocessing"}, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := rec.Finish(context.Background(), provenance.StatusFailed, provenance.Details{"error": "boom"}); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	if run.Status != provenance.StatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if run.Details["error"] != "boom" {
		t.Errorf("details error = %v", run.Details["error"])
	}
	if run.Details["agent"] != "evidence-classifier" {
		t.Error("finish dropped seeded details")
	}

	wantUpdates := []string{"pipeline:failed", "agent:failed"}
	if len(store.updates) != len(wantUpdates) {
		t.Fatalf("updates = %v, want %v", store.updates, wantUpdates)
	}
	for i, u := range wantUpdates {
		if store.updates[i] != u {
			t.Errorf("updates[%d] = %q, want %q", i, store.updates[i], u)
		}
	}
}

func TestRecorderEmitEvent(t *testing.T) {
	store := &fakeStore{}
	rec, evidenceID := newRecorder(store)

	if _, err := rec.Start(context.Background(), nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := rec.EmitEvent(context.Background(), "EvidencePreprocessed", provenance.Details{"content_hash": "abc"}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	event := store.events[0]
	if event.EventType != "EvidencePreprocessed" {
		t.Errorf("event type = %q", event.EventType)
	}
	if event.EvidenceID == nil || *event.EvidenceID != evidenceID {
		t.Error("event not tied to evidence")
	}
	if event.Payload["content_hash"] != "abc" {
		t.Errorf("payload = %v", event.Payload)
	}
}
