package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
	"github.com/c360studio/policypipe/storage"
)

type markerKey struct {
	workflowID string
	documentID string
	stage      document.Stage
}

// fakeMarkers is an in-memory MarkerStore tracking status transitions.
type fakeMarkers struct {
	mu      sync.Mutex
	runs    map[markerKey]*document.WorkflowStageRun
	failOps map[document.Stage]error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{
		runs:    make(map[markerKey]*document.WorkflowStageRun),
		failOps: make(map[document.Stage]error),
	}
}

func (f *fakeMarkers) GetStageRun(_ context.Context, workflowID, documentID string, stage document.Stage) (*document.WorkflowStageRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[markerKey{workflowID, documentID, stage}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeMarkers) BeginStage(_ context.Context, workflowID, documentID string, stage document.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[markerKey{workflowID, documentID, stage}] = &document.WorkflowStageRun{
		WorkflowID: workflowID,
		DocumentID: documentID,
		Stage:      stage,
		Status:     document.StageRunning,
		StartedAt:  time.Now(),
	}
	return nil
}

func (f *fakeMarkers) CompleteStage(_ context.Context, workflowID, documentID string, stage document.Stage, summary []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps[stage]; err != nil {
		return err
	}
	run := f.runs[markerKey{workflowID, documentID, stage}]
	run.Status = document.StageCompleted
	run.Summary = summary
	return nil
}

func (f *fakeMarkers) FailStage(_ context.Context, workflowID, documentID string, stage document.Stage, stageErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := f.runs[markerKey{workflowID, documentID, stage}]
	run.Status = document.StageFailed
	run.Error = stageErr
	return nil
}

func (f *fakeMarkers) status(workflowID, documentID string, stage document.Stage) document.StageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[markerKey{workflowID, documentID, stage}]
	if !ok {
		return ""
	}
	return run.Status
}

func (f *fakeMarkers) seedCompleted(workflowID, documentID string, stage document.Stage, summary string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[markerKey{workflowID, documentID, stage}] = &document.WorkflowStageRun{
		WorkflowID: workflowID,
		DocumentID: documentID,
		Stage:      stage,
		Status:     document.StageCompleted,
		Summary:    []byte(summary),
	}
}

// fakeTracker is an in-memory RunTracker.
type fakeTracker struct {
	mu         sync.Mutex
	state      *storage.RunState
	heartbeats int
}

func newFakeTracker(workflowID string) *fakeTracker {
	return &fakeTracker{state: &storage.RunState{
		WorkflowID: workflowID,
		Status:     storage.RunPending,
	}}
}

func (f *fakeTracker) Get(_ context.Context, _ string) (*storage.RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.state
	return &cp, nil
}

func (f *fakeTracker) Update(_ context.Context, state *storage.RunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *state
	f.state = &cp
	return nil
}

func (f *fakeTracker) Heartbeat(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeTracker) snapshot() storage.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.state
}

// scriptedStage returns its scripted errors in order, then succeeds.
type scriptedStage struct {
	stage   document.Stage
	errs    []error
	summary any

	mu    sync.Mutex
	calls int
}

func (s *scriptedStage) Stage() document.Stage { return s.stage }

func (s *scriptedStage) Execute(_ context.Context, _ Request) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	if s.summary == nil {
		return map[string]int{"ok": 1}, nil
	}
	return s.summary, nil
}

func (s *scriptedStage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// memoryEvents records published events.
type memoryEvents struct {
	mu     sync.Mutex
	events []Event
}

func (m *memoryEvents) PublishEvent(_ context.Context, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *memoryEvents) types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		MaxAttempts:     attempts,
	}
}

func allStages() []*scriptedStage {
	out := make([]*scriptedStage, len(document.Stages))
	for i, st := range document.Stages {
		out[i] = &scriptedStage{stage: st}
	}
	return out
}

func asExecutors(stages []*scriptedStage) []StageExecutor {
	out := make([]StageExecutor, len(stages))
	for i, s := range stages {
		out[i] = s
	}
	return out
}

func TestProcessDocumentHappyPath(t *testing.T) {
	markers := newFakeMarkers()
	tracker := newFakeTracker("wf:1")
	events := &memoryEvents{}
	stages := allStages()

	engine := NewEngine(markers, tracker, asExecutors(stages),
		WithRetryPolicy(fastRetry(2)), WithEventPublisher(events))

	results, err := engine.ProcessDocument(context.Background(), "wf:1", "doc:1", "bop", config.ProductConfig{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for _, st := range document.Stages {
		assert.Equal(t, document.StageCompleted, markers.status("wf:1", "doc:1", st))
		var summary map[string]int
		require.NoError(t, json.Unmarshal(results[st], &summary))
		assert.Equal(t, 1, summary["ok"])
	}

	state := tracker.snapshot()
	assert.Equal(t, storage.RunCompleted, state.Status)
	assert.InDelta(t, 1.0, state.Progress, 0.001)

	types := events.types()
	assert.Equal(t, EventType("run_completed"), types[len(types)-1])
	started, completed := 0, 0
	for _, ty := range types {
		switch ty {
		case EventStageStarted:
			started++
		case EventStageCompleted:
			completed++
		}
	}
	assert.Equal(t, 4, started)
	assert.Equal(t, 4, completed)
}

func TestProcessDocumentResumesFromMarkers(t *testing.T) {
	markers := newFakeMarkers()
	markers.seedCompleted("wf:1", "doc:1", document.StageProcessed, `{"chunks":12}`)
	markers.seedCompleted("wf:1", "doc:1", document.StageExtracted, `{"sections":5}`)

	stages := allStages()
	engine := NewEngine(markers, newFakeTracker("wf:1"), asExecutors(stages),
		WithRetryPolicy(fastRetry(1)))

	results, err := engine.ProcessDocument(context.Background(), "wf:1", "doc:1", "bop", config.ProductConfig{})
	require.NoError(t, err)

	// Completed stages are not re-executed; their stored summaries are
	// returned as-is.
	assert.Equal(t, 0, stages[0].callCount())
	assert.Equal(t, 0, stages[1].callCount())
	assert.Equal(t, 1, stages[2].callCount())
	assert.Equal(t, 1, stages[3].callCount())
	assert.JSONEq(t, `{"chunks":12}`, string(results[document.StageProcessed]))
	assert.JSONEq(t, `{"sections":5}`, string(results[document.StageExtracted]))
}

func TestProcessDocumentRetriesTransientFailure(t *testing.T) {
	stages := allStages()
	stages[1].errs = []error{
		llm.NewTransientError(errors.New("rate limited")),
		llm.NewTransientError(errors.New("rate limited")),
	}

	engine := NewEngine(newFakeMarkers(), newFakeTracker("wf:1"), asExecutors(stages),
		WithRetryPolicy(fastRetry(4)))

	_, err := engine.ProcessDocument(context.Background(), "wf:1", "doc:1", "bop", config.ProductConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3, stages[1].callCount())
}

func TestProcessDocumentPermanentErrorShortCircuits(t *testing.T) {
	for name, stageErr := range map[string]error{
		"wrapped permanent": Permanent(errors.New("manifest invalid")),
		"llm fatal":         llm.NewFatalError(errors.New("invalid api key")),
	} {
		t.Run(name, func(t *testing.T) {
			markers := newFakeMarkers()
			stages := allStages()
			stages[0].errs = []error{stageErr, stageErr, stageErr, stageErr}

			engine := NewEngine(markers, newFakeTracker("wf:1"), asExecutors(stages),
				WithRetryPolicy(fastRetry(4)))

			_, err := engine.ProcessDocument(context.Background(), "wf:1", "doc:1", "bop", config.ProductConfig{})
			require.Error(t, err)
			assert.Equal(t, 1, stages[0].callCount())
			assert.Equal(t, document.StageFailed, markers.status("wf:1", "doc:1", document.StageProcessed))
		})
	}
}

func TestProcessDocumentFailureKeepsPriorCheckpoints(t *testing.T) {
	markers := newFakeMarkers()
	tracker := newFakeTracker("wf:1")
	events := &memoryEvents{}
	stages := allStages()
	stages[2].errs = []error{
		Permanent(errors.New("entity store unreachable")),
	}

	engine := NewEngine(markers, tracker, asExecutors(stages),
		WithRetryPolicy(fastRetry(2)), WithEventPublisher(events))

	results, err := engine.ProcessDocument(context.Background(), "wf:1", "doc:1", "bop", config.ProductConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity store unreachable")

	// The first two stages keep their completion markers; the failed stage
	// records the error; the last stage never runs.
	assert.Equal(t, document.StageCompleted, markers.status("wf:1", "doc:1", document.StageProcessed))
	assert.Equal(t, document.StageCompleted, markers.status("wf:1", "doc:1", document.StageExtracted))
	assert.Equal(t, document.StageFailed, markers.status("wf:1", "doc:1", document.StageEnriched))
	assert.Equal(t, document.StageStatus(""), markers.status("wf:1", "doc:1", document.StageSummarized))
	assert.Equal(t, 0, stages[3].callCount())
	assert.Len(t, results, 2)

	state := tracker.snapshot()
	assert.Equal(t, storage.RunFailed, state.Status)
	assert.Equal(t, string(document.StageEnriched), state.CurrentStage)
	assert.Contains(t, state.Error, "entity store unreachable")

	types := events.types()
	assert.Equal(t, EventType("run_failed"), types[len(types)-1])
}

func TestProcessDocumentRetryExhaustion(t *testing.T) {
	markers := newFakeMarkers()
	stages := allStages()
	transient := llm.NewTransientError(errors.New("upstream 503"))
	stages[0].errs = []error{transient, transient, transient, transient}

	engine := NewEngine(markers, newFakeTracker("wf:1"), asExecutors(stages),
		WithRetryPolicy(fastRetry(3)))

	_, err := engine.ProcessDocument(context.Background(), "wf:1", "doc:1", "bop", config.ProductConfig{})
	require.Error(t, err)
	assert.Equal(t, 3, stages[0].callCount())
	assert.Equal(t, document.StageFailed, markers.status("wf:1", "doc:1", document.StageProcessed))
}

func TestProcessDocumentCancellation(t *testing.T) {
	markers := newFakeMarkers()
	stages := allStages()
	transient := llm.NewTransientError(errors.New("slow upstream"))
	stages[0].errs = []error{transient, transient, transient}

	engine := NewEngine(markers, newFakeTracker("wf:1"), asExecutors(stages),
		WithRetryPolicy(RetryPolicy{
			InitialInterval: time.Minute,
			MaxInterval:     time.Minute,
			Multiplier:      2,
			MaxAttempts:     4,
		}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := engine.ProcessDocument(ctx, "wf:1", "doc:1", "bop", config.ProductConfig{})
	require.Error(t, err)
	// The failure marker is written despite the cancelled context.
	assert.Equal(t, document.StageFailed, markers.status("wf:1", "doc:1", document.StageProcessed))
}

func TestIsComplete(t *testing.T) {
	markers := newFakeMarkers()
	engine := NewEngine(markers, nil, nil)

	done, err := engine.IsComplete(context.Background(), "wf:1", "doc:1", document.StageProcessed)
	require.NoError(t, err)
	assert.False(t, done)

	markers.seedCompleted("wf:1", "doc:1", document.StageProcessed, `{}`)
	done, err = engine.IsComplete(context.Background(), "wf:1", "doc:1", document.StageProcessed)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5*time.Second, p.backoff(1))
	assert.Equal(t, 10*time.Second, p.backoff(2))
	assert.Equal(t, 20*time.Second, p.backoff(3))
	assert.Equal(t, 40*time.Second, p.backoff(4))
	assert.Equal(t, 60*time.Second, p.backoff(5))
	assert.Equal(t, 60*time.Second, p.backoff(10))
}

func TestHeartbeatsDuringStage(t *testing.T) {
	tracker := newFakeTracker("wf:1")
	slow := &scriptedStage{stage: document.StageProcessed}
	slowWrap := &blockingStage{inner: slow, delay: 60 * time.Millisecond}

	engine := NewEngine(newFakeMarkers(), tracker, []StageExecutor{slowWrap},
		WithHeartbeatInterval(10*time.Millisecond))

	// Only the first stage is registered, so dependency checks do not apply.
	_, err := engine.runStage(context.Background(), slowWrap, Request{WorkflowID: "wf:1", DocumentID: "doc:1"})
	require.NoError(t, err)

	tracker.mu.Lock()
	beats := tracker.heartbeats
	tracker.mu.Unlock()
	assert.Greater(t, beats, 1)
}

type blockingStage struct {
	inner StageExecutor
	delay time.Duration
}

func (b *blockingStage) Stage() document.Stage { return b.inner.Stage() }

func (b *blockingStage) Execute(ctx context.Context, req Request) (any, error) {
	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.inner.Execute(ctx, req)
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("boom")
	wrapped := Permanent(fmt.Errorf("stage: %w", base))
	assert.True(t, isPermanent(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.Nil(t, Permanent(nil))
	assert.False(t, isPermanent(errors.New("plain")))
	assert.True(t, isPermanent(llm.NewFatalError(errors.New("bad key"))))
	assert.False(t, isPermanent(llm.NewTransientError(errors.New("429"))))
}
