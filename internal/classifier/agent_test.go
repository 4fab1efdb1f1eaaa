package classifier_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/classifier"
	"github.com/auditstack/attest/internal/controls"
	"github.com/auditstack/attest/internal/embeddings"
	"github.com/auditstack/attest/internal/evidence"
	"github.com/auditstack/attest/internal/preprocess"
	"github.com/auditstack/attest/internal/provenance"
	"github.com/auditstack/attest/internal/tasks"
)

type fakeEvidenceStore struct {
	items   map[uuid.UUID]*evidence.Evidence
	updates map[uuid.UUID]evidence.Classification
}

func newFakeEvidenceStore(items ...*evidence.Evidence) *fakeEvidenceStore {
	store := &fakeEvidenceStore{
		items:   map[uuid.UUID]*evidence.Evidence{},
		updates: map[uuid.UUID]evidence.Classification{},
	}
	for _, ev := range items {
		store.items[ev.ID] = ev
	}
	return store
}

func (f *fakeEvidenceStore) Find(_ context.Context, id uuid.UUID) (*evidence.Evidence, error) {
	ev, ok := f.items[id]
	if !ok {
		return nil, evidence.ErrNotFound
	}
	copied := *ev
	return &copied, nil
}

func (f *fakeEvidenceStore) UpdateClassification(_ context.Context, id uuid.UUID, c evidence.Classification) error {
	f.updates[id] = c
	if ev, ok := f.items[id]; ok {
		ev.Classification = &c
	}
	return nil
}

type fakeSearcher struct {
	candidates []controls.Candidate
	err        error
}

func (f *fakeSearcher) TopCandidates(context.Context, string, int) ([]controls.Candidate, error) {
	return f.candidates, f.err
}

type fakeOutputStore struct {
	outputs []classifier.Output
	latest  map[uuid.UUID]*classifier.Output
}

func newFakeOutputStore() *fakeOutputStore {
	return &fakeOutputStore{latest: map[uuid.UUID]*classifier.Output{}}
}

func (f *fakeOutputStore) Create(_ context.Context, out *classifier.Output) error {
	out.ID = uuid.New()
	f.outputs = append(f.outputs, *out)
	f.latest[out.EvidenceID] = out
	return nil
}

func (f *fakeOutputStore) LatestForEvidence(_ context.Context, evidenceID uuid.UUID) (*classifier.Output, error) {
	out, ok := f.latest[evidenceID]
	if !ok {
		return nil, classifier.ErrNoOutput
	}
	return out, nil
}

type fakeTaskCreator struct {
	created []tasks.Task
	calls   int
}

func (f *fakeTaskCreator) CreateForControls(_ context.Context, _ *evidence.Evidence, matched []controls.Control) ([]tasks.Task, error) {
	f.calls++
	out := make([]tasks.Task, 0, len(matched))
	for range matched {
		out = append(out, tasks.Task{ID: uuid.New()})
	}
	f.created = out
	return out, nil
}

type fakeEmbeddingStore struct {
	byHash   map[string]uuid.UUID
	nearest  *embeddings.Neighbor
	upserted []string
}

func newFakeEmbeddingStore() *fakeEmbeddingStore {
	return &fakeEmbeddingStore{byHash: map[string]uuid.UUID{}}
}

func (f *fakeEmbeddingStore) Upsert(_ context.Context, evidenceID uuid.UUID, _ string, contentHash string) error {
	f.byHash[contentHash] = evidenceID
	f.upserted = append(f.upserted, contentHash)
	return nil
}

func (f *fakeEmbeddingStore) FindByHash(_ context.Context, contentHash string) (*embeddings.Neighbor, error) {
	id, ok := f.byHash[contentHash]
	if !ok {
		return nil, embeddings.ErrNoEmbedding
	}
	return &embeddings.Neighbor{EvidenceID: id, Distance: 0}, nil
}

func (f *fakeEmbeddingStore) Nearest(_ context.Context, _ string, _ float64) (*embeddings.Neighbor, error) {
	if f.nearest == nil {
		return nil, embeddings.ErrNoEmbedding
	}
	return f.nearest, nil
}

type fakeProvStore struct {
	runs   []*provenance.PipelineRun
	agents []*provenance.AgentRun
	steps  []*provenance.StepLog
	events []*provenance.Event
}

func (f *fakeProvStore) Handler() *provenance.Handler { return nil }

func (f *fakeProvStore) CreatePipelineRun(_ context.Context, run *provenance.PipelineRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeProvStore) UpdatePipelineRun(context.Context, *provenance.PipelineRun) error { return nil }

func (f *fakeProvStore) CreateAgentRun(_ context.Context, run *provenance.AgentRun) error {
	f.agents = append(f.agents, run)
	return nil
}

func (f *fakeProvStore) UpdateAgentRun(context.Context, *provenance.AgentRun) error { return nil }

func (f *fakeProvStore) CreateStepLog(_ context.Context, step *provenance.StepLog) error {
	f.steps = append(f.steps, step)
	return nil
}

func (f *fakeProvStore) UpdateStepLog(context.Context, *provenance.StepLog) error { return nil }

func (f *fakeProvStore) CreateEvent(_ context.Context, event *provenance.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeProvStore) FindRun(context.Context, uuid.UUID) (*provenance.PipelineRun, error) {
	return nil, provenance.ErrNotFound
}

func (f *fakeProvStore) RunsForEvidence(context.Context, uuid.UUID) ([]provenance.PipelineRun, error) {
	return nil, nil
}

func (f *fakeProvStore) StepsForRun(context.Context, uuid.UUID) ([]provenance.StepLog, error) {
	return nil, nil
}

func (f *fakeProvStore) EventsForEvidence(context.Context, uuid.UUID) ([]provenance.Event, error) {
	return nil, nil
}

func (f *fakeProvStore) stepNames() []string {
	names := make([]string, 0, len(f.steps))
	for _, s := range f.steps {
		names = append(names, s.StepName)
	}
	return names
}

func (f *fakeProvStore) eventTypes() []string {
	types := make([]string, 0, len(f.events))
	for _, e := range f.events {
		types = append(types, e.EventType)
	}
	return types
}

type harness struct {
	agent      *classifier.Agent
	evidence   *fakeEvidenceStore
	searcher   *fakeSearcher
	outputs    *fakeOutputStore
	tasks      *fakeTaskCreator
	embeddings *fakeEmbeddingStore
	provenance *fakeProvStore
}

func newHarness(searcher *fakeSearcher, items ...*evidence.Evidence) *harness {
	h := &harness{
		evidence:   newFakeEvidenceStore(items...),
		searcher:   searcher,
		outputs:    newFakeOutputStore(),
		tasks:      &fakeTaskCreator{},
		embeddings: newFakeEmbeddingStore(),
		provenance: &fakeProvStore{},
	}

	h.agent = classifier.NewAgent(
		h.evidence,
		h.searcher,
		h.outputs,
		h.tasks,
		h.embeddings,
		h.provenance,
		nil,
		classifier.Options{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return h
}

func candidate(reference string, score float64) controls.Candidate {
	return controls.Candidate{
		Control: controls.Control{
			ID:          uuid.New(),
			FrameworkID: uuid.New(),
			Reference:   reference,
			Title:       reference + " title",
		},
		Score: score,
	}
}

func bucketPolicyEvidence() *evidence.Evidence {
	source := "aws_s3"
	return &evidence.Evidence{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Title:          "S3 bucket policy",
		SourceType:     &source,
		ExtractedText:  `{"Action": ["s3:GetObject"]}`,
		Status:         "uploaded",
	}
}

func TestClassifyFullRun(t *testing.T) {
	ev := bucketPolicyEvidence()
	searcher := &fakeSearcher{candidates: []controls.Candidate{
		candidate("SOC2-CC6.1", 0.62),
		candidate("SOC2-CC6.2", 0.30),
		candidate("SOC2-CC6.3", 0.12),
		candidate("SOC2-CC7.1", 0.05),
	}}
	h := newHarness(searcher, ev)

	result, err := h.agent.Classify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	wantPrimaries := []string{"SOC2-CC6.1", "SOC2-CC6.2", "SOC2-CC6.3"}
	if len(result.PrimaryControls) != len(wantPrimaries) {
		t.Fatalf("primaries = %v, want %v", result.PrimaryControls, wantPrimaries)
	}
	for i, ref := range wantPrimaries {
		if result.PrimaryControls[i] != ref {
			t.Errorf("primaries[%d] = %q, want %q", i, result.PrimaryControls[i], ref)
		}
	}

	wantConfidence := 0.5 + 0.62*0.5
	if result.Confidence != wantConfidence {
		t.Errorf("confidence = %v, want %v", result.Confidence, wantConfidence)
	}
	if result.CacheHit {
		t.Error("cache_hit = true, want false")
	}

	if len(h.outputs.outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(h.outputs.outputs))
	}
	out := h.outputs.outputs[0]
	if out.EvidenceID != ev.ID {
		t.Error("output not linked to evidence")
	}
	if out.PipelineRunID.String() != result.PipelineRunID {
		t.Error("output not linked to pipeline run")
	}

	if len(h.embeddings.upserted) != 1 {
		t.Fatalf("embeddings upserted = %d, want 1", len(h.embeddings.upserted))
	}

	classification, ok := h.evidence.updates[ev.ID]
	if !ok {
		t.Fatal("ai_classification not updated")
	}
	if classification.CacheHit {
		t.Error("classification cache_hit = true, want false")
	}
	if classification.ContentHash != h.embeddings.upserted[0] {
		t.Error("classification content_hash does not match stored embedding")
	}
	if len(classification.CreatedTasks) != 3 {
		t.Errorf("created_tasks = %d, want 3", len(classification.CreatedTasks))
	}

	wantSteps := classifier.StepNames
	got := h.provenance.stepNames()
	if len(got) != len(wantSteps) {
		t.Fatalf("steps = %v, want %v", got, wantSteps)
	}
	for i, name := range wantSteps {
		if got[i] != name {
			t.Errorf("steps[%d] = %q, want %q", i, got[i], name)
		}
	}
	for _, step := range h.provenance.steps {
		if step.Status != provenance.StatusCompleted {
			t.Errorf("step %s status = %q, want completed", step.StepName, step.Status)
		}
	}

	wantEvents := []string{"EvidencePreprocessed", "ClassificationCompleted", "EmbeddingComputed"}
	gotEvents := h.provenance.eventTypes()
	if len(gotEvents) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", gotEvents, wantEvents)
	}
	for i, e := range wantEvents {
		if gotEvents[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, gotEvents[i], e)
		}
	}

	run := h.provenance.runs[0]
	if run.Status != provenance.StatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
}

func TestClassifyGenericFallback(t *testing.T) {
	ev := bucketPolicyEvidence()
	h := newHarness(&fakeSearcher{}, ev)

	result, err := h.agent.Classify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if len(result.PrimaryControls) != 1 || result.PrimaryControls[0] != classifier.GenericControl {
		t.Errorf("primaries = %v, want [%s]", result.PrimaryControls, classifier.GenericControl)
	}
	if result.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", result.Confidence)
	}
	if len(h.tasks.created) != 0 {
		t.Errorf("tasks created = %d, want 0 for generic fallback", len(h.tasks.created))
	}

	out := h.outputs.outputs[0]
	if out.RawOutput["reason"] == nil {
		t.Error("raw output missing fallback reason")
	}
}

func TestClassifyThresholdBoundary(t *testing.T) {
	tests := []struct {
		name        string
		score       float64
		wantGeneric bool
	}{
		{name: "at threshold qualifies", score: 0.01, wantGeneric: false},
		{name: "below threshold falls back", score: 0.009, wantGeneric: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := bucketPolicyEvidence()
			searcher := &fakeSearcher{candidates: []controls.Candidate{candidate("SOC2-CC1.1", tt.score)}}
			h := newHarness(searcher, ev)

			result, err := h.agent.Classify(context.Background(), ev.ID)
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}

			gotGeneric := result.PrimaryControls[0] == classifier.GenericControl
			if gotGeneric != tt.wantGeneric {
				t.Errorf("generic = %v, want %v (primaries %v)", gotGeneric, tt.wantGeneric, result.PrimaryControls)
			}
		})
	}
}

func TestClassifyConfidenceCap(t *testing.T) {
	ev := bucketPolicyEvidence()
	searcher := &fakeSearcher{candidates: []controls.Candidate{candidate("SOC2-CC6.1", 1.2)}}
	h := newHarness(searcher, ev)

	result, err := h.agent.Classify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if result.Confidence != 0.95 {
		t.Errorf("confidence = %v, want capped 0.95", result.Confidence)
	}
}

func TestClassifyCacheHitExactHash(t *testing.T) {
	source := bucketPolicyEvidence()
	similarity := 1.0
	source.Classification = &evidence.Classification{
		PrimaryControls: []string{"SOC2-CC6.1"},
		Confidence:      0.81,
	}

	duplicate := bucketPolicyEvidence()
	duplicate.OrganizationID = source.OrganizationID

	h := newHarness(&fakeSearcher{}, source, duplicate)

	text, _ := preprocess.Canonical(source.Document())
	hash := preprocess.ContentHash(text)
	h.embeddings.byHash[hash] = source.ID

	result, err := h.agent.Classify(context.Background(), duplicate.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if !result.CacheHit {
		t.Fatal("cache_hit = false, want true")
	}
	if result.Similarity == nil || *result.Similarity != similarity {
		t.Errorf("similarity = %v, want 1.0", result.Similarity)
	}
	if result.SourceEvidenceID != source.ID.String() {
		t.Errorf("source_evidence_id = %q, want %q", result.SourceEvidenceID, source.ID)
	}
	if result.PrimaryControls[0] != "SOC2-CC6.1" {
		t.Errorf("primaries = %v", result.PrimaryControls)
	}

	// short circuit: no output, no embedding write, only two steps
	if len(h.outputs.outputs) != 0 {
		t.Errorf("outputs = %d, want 0 on cache hit", len(h.outputs.outputs))
	}
	if len(h.embeddings.upserted) != 0 {
		t.Errorf("embeddings upserted = %d, want 0 on cache hit", len(h.embeddings.upserted))
	}
	steps := h.provenance.stepNames()
	if len(steps) != 2 || steps[0] != "preprocessing" || steps[1] != "cache_lookup" {
		t.Errorf("steps = %v, want [preprocessing cache_lookup]", steps)
	}
	run := h.provenance.runs[0]
	if run.Status != provenance.StatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}

	classification := h.evidence.updates[duplicate.ID]
	if !classification.CacheHit {
		t.Error("stored classification cache_hit = false, want true")
	}
}

func TestClassifyCacheHitNearestNeighbor(t *testing.T) {
	source := bucketPolicyEvidence()
	source.Classification = &evidence.Classification{
		PrimaryControls: []string{"SOC2-CC6.1"},
		Confidence:      0.77,
	}

	target := bucketPolicyEvidence()
	target.Title = "S3 bucket policy v2"

	h := newHarness(&fakeSearcher{}, source, target)
	h.embeddings.nearest = &embeddings.Neighbor{EvidenceID: source.ID, Distance: 0.2}

	result, err := h.agent.Classify(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if !result.CacheHit {
		t.Fatal("cache_hit = false, want true")
	}
	if result.Similarity == nil || *result.Similarity != 0.8 {
		t.Errorf("similarity = %v, want 0.8", result.Similarity)
	}
}

func TestClassifyCacheResolvesFromLatestOutput(t *testing.T) {
	source := bucketPolicyEvidence()
	duplicate := bucketPolicyEvidence()

	h := newHarness(&fakeSearcher{}, source, duplicate)

	runID := uuid.New()
	h.outputs.latest[source.ID] = &classifier.Output{
		EvidenceID:      source.ID,
		PipelineRunID:   runID,
		PrimaryControls: []string{"SOC2-CC7.2"},
		Confidence:      0.66,
	}

	text, _ := preprocess.Canonical(duplicate.Document())
	h.embeddings.byHash[preprocess.ContentHash(text)] = source.ID

	result, err := h.agent.Classify(context.Background(), duplicate.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if !result.CacheHit {
		t.Fatal("cache_hit = false, want true")
	}
	if result.PrimaryControls[0] != "SOC2-CC7.2" {
		t.Errorf("primaries = %v", result.PrimaryControls)
	}
	if result.Confidence != 0.66 {
		t.Errorf("confidence = %v, want 0.66", result.Confidence)
	}
}

func TestClassifyCacheHitWithoutPrimaryControls(t *testing.T) {
	source := bucketPolicyEvidence()
	source.Classification = &evidence.Classification{Confidence: 0.81}

	duplicate := bucketPolicyEvidence()

	h := newHarness(&fakeSearcher{}, source, duplicate)

	text, _ := preprocess.Canonical(duplicate.Document())
	h.embeddings.byHash[preprocess.ContentHash(text)] = source.ID

	result, err := h.agent.Classify(context.Background(), duplicate.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if !result.CacheHit {
		t.Fatal("cache_hit = false, want true")
	}
	if result.PrimaryControls == nil {
		t.Error("primary_controls = nil, want []")
	}
	if len(result.PrimaryControls) != 0 {
		t.Errorf("primaries = %v, want empty", result.PrimaryControls)
	}

	stored := h.evidence.updates[duplicate.ID]
	if stored.PrimaryControls == nil {
		t.Error("stored primary_controls = nil, want []")
	}
}

func TestClassifyUnresolvableCacheIsMiss(t *testing.T) {
	ev := bucketPolicyEvidence()
	searcher := &fakeSearcher{candidates: []controls.Candidate{candidate("SOC2-CC6.1", 0.5)}}
	h := newHarness(searcher, ev)

	// embedding points at evidence with no classification and no outputs
	orphan := bucketPolicyEvidence()
	h.evidence.items[orphan.ID] = orphan
	text, _ := preprocess.Canonical(ev.Document())
	h.embeddings.byHash[preprocess.ContentHash(text)] = orphan.ID

	result, err := h.agent.Classify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if result.CacheHit {
		t.Error("cache_hit = true, want miss for unresolvable source")
	}
	if result.PrimaryControls[0] != "SOC2-CC6.1" {
		t.Errorf("primaries = %v, want full run result", result.PrimaryControls)
	}
}

func TestClassifyFailureMarksRunFailed(t *testing.T) {
	ev := bucketPolicyEvidence()
	searcher := &fakeSearcher{err: errors.New("fts unavailable")}
	h := newHarness(searcher, ev)

	_, err := h.agent.Classify(context.Background(), ev.ID)
	if err == nil {
		t.Fatal("expected error")
	}

	run := h.provenance.runs[0]
	if run.Status != provenance.StatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
	if run.Details["error"] == nil {
		t.Error("run details missing error")
	}

	var failedStep *provenance.StepLog
	for _, step := range h.provenance.steps {
		if step.StepName == "candidate_retrieval" {
			failedStep = step
		}
	}
	if failedStep == nil {
		t.Fatal("candidate_retrieval step not recorded")
	}
	if failedStep.Status != provenance.StatusFailed {
		t.Errorf("step status = %q, want failed", failedStep.Status)
	}

	if len(h.evidence.updates) != 0 {
		t.Error("ai_classification updated on failed run")
	}
}

func TestClassifyUnknownEvidence(t *testing.T) {
	h := newHarness(&fakeSearcher{})

	_, err := h.agent.Classify(context.Background(), uuid.New())
	if !errors.Is(err, evidence.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if len(h.provenance.runs) != 0 {
		t.Error("run created for unknown evidence")
	}
}
