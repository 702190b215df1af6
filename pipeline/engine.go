package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
	"github.com/c360studio/policypipe/storage"
)

// Request identifies the work a stage executes.
type Request struct {
	WorkflowID string
	DocumentID string
	Product    string
	Config     config.ProductConfig
}

// StageExecutor runs one pipeline stage. Execute returns a summary that is
// persisted with the completion marker and surfaced by the status API.
type StageExecutor interface {
	Stage() document.Stage
	Execute(ctx context.Context, req Request) (any, error)
}

// MarkerStore is the durable stage-marker surface the engine needs.
type MarkerStore interface {
	GetStageRun(ctx context.Context, workflowID, documentID string, stage document.Stage) (*document.WorkflowStageRun, error)
	BeginStage(ctx context.Context, workflowID, documentID string, stage document.Stage) error
	CompleteStage(ctx context.Context, workflowID, documentID string, stage document.Stage, summary []byte) error
	FailStage(ctx context.Context, workflowID, documentID string, stage document.Stage, stageErr string) error
}

// RunTracker is the live run-state surface (NATS KV in production).
type RunTracker interface {
	Get(ctx context.Context, workflowID string) (*storage.RunState, error)
	Update(ctx context.Context, state *storage.RunState) error
	Heartbeat(ctx context.Context, workflowID string) error
}

// RetryPolicy bounds stage retries with exponential backoff.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// DefaultRetryPolicy matches the activity retry class used across stages.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 5 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      2,
		MaxAttempts:     4,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialInterval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	return d
}

// permanentError marks a stage error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the engine fails the stage without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || llm.IsFatal(err)
}

// StageResults maps completed stages to their summaries.
type StageResults map[document.Stage]json.RawMessage

// Engine drives the stages for one document sequentially, honoring existing
// completion markers so an interrupted run resumes where it stopped.
type Engine struct {
	markers        MarkerStore
	runs           RunTracker
	events         EventPublisher
	stages         []StageExecutor
	retry          RetryPolicy
	heartbeatEvery time.Duration
	logger         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRetryPolicy overrides the stage retry policy.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) { e.retry = p }
}

// WithEventPublisher sets the event sink.
func WithEventPublisher(pub EventPublisher) EngineOption {
	return func(e *Engine) { e.events = pub }
}

// WithHeartbeatInterval overrides the heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.heartbeatEvery = d
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine over the given stage executors. Executors must
// be supplied in dependency order.
func NewEngine(markers MarkerStore, runs RunTracker, stages []StageExecutor, opts ...EngineOption) *Engine {
	e := &Engine{
		markers:        markers,
		runs:           runs,
		events:         NopEventPublisher{},
		stages:         stages,
		retry:          DefaultRetryPolicy(),
		heartbeatEvery: 30 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsComplete reports whether a stage has a completion marker.
func (e *Engine) IsComplete(ctx context.Context, workflowID, documentID string, stage document.Stage) (bool, error) {
	run, err := e.markers.GetStageRun(ctx, workflowID, documentID, stage)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return run.Status == document.StageCompleted, nil
}

// ProcessDocument runs every stage in order. Stages with existing completion
// markers return their stored summary without re-running. On stage failure
// the marker records the error, the run is marked failed, and prior
// completed stages remain valid checkpoints.
func (e *Engine) ProcessDocument(ctx context.Context, workflowID, documentID string, product string, cfg config.ProductConfig) (StageResults, error) {
	req := Request{WorkflowID: workflowID, DocumentID: documentID, Product: product, Config: cfg}
	results := make(StageResults, len(e.stages))

	e.updateRun(ctx, workflowID, func(state *storage.RunState) {
		state.Status = storage.RunRunning
	})

	for i, executor := range e.stages {
		stage := executor.Stage()

		existing, err := e.markers.GetStageRun(ctx, workflowID, documentID, stage)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return results, fmt.Errorf("check stage %s: %w", stage, err)
		}
		if existing != nil && existing.Status == document.StageCompleted {
			results[stage] = existing.Summary
			e.logger.Info("Stage already complete, skipping",
				"workflow_id", workflowID, "document_id", documentID, "stage", stage)
			continue
		}

		for _, dep := range document.StageDependencies[stage] {
			if _, ok := results[dep]; !ok {
				return results, fmt.Errorf("stage %s requires %s to be completed first", stage, dep)
			}
		}

		summary, err := e.runStage(ctx, executor, req)
		if err != nil {
			e.failRun(ctx, req, stage, err)
			return results, err
		}
		results[stage] = summary

		e.updateRun(ctx, workflowID, func(state *storage.RunState) {
			state.CurrentStage = string(stage)
			state.Progress = float64(i+1) / float64(len(e.stages))
		})
	}

	e.updateRun(ctx, workflowID, func(state *storage.RunState) {
		state.Status = storage.RunCompleted
		state.Progress = 1
		state.CurrentStage = ""
	})
	e.events.PublishEvent(ctx, Event{
		Type: EventRunCompleted, WorkflowID: workflowID, DocumentID: documentID,
		Timestamp: time.Now(),
	})

	return results, nil
}

// runStage begins the marker, executes with retries and heartbeats, and
// finishes the marker. Marker writes on the failure path use a
// cancellation-shielded context so the durable record survives workflow
// cancellation.
func (e *Engine) runStage(ctx context.Context, executor StageExecutor, req Request) (json.RawMessage, error) {
	stage := executor.Stage()

	if err := e.markers.BeginStage(ctx, req.WorkflowID, req.DocumentID, stage); err != nil {
		return nil, fmt.Errorf("begin stage %s: %w", stage, err)
	}
	e.events.PublishEvent(ctx, Event{
		Type: EventStageStarted, WorkflowID: req.WorkflowID, DocumentID: req.DocumentID,
		Stage: stage, Timestamp: time.Now(),
	})

	stopHeartbeat := e.startHeartbeat(ctx, req.WorkflowID)
	defer stopHeartbeat()

	var summary any
	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		summary, lastErr = executor.Execute(ctx, req)
		if lastErr == nil {
			break
		}
		if isPermanent(lastErr) || ctx.Err() != nil {
			break
		}
		if attempt < e.retry.MaxAttempts {
			backoff := e.retry.backoff(attempt)
			e.logger.Warn("Stage attempt failed, retrying",
				"workflow_id", req.WorkflowID, "stage", stage,
				"attempt", attempt, "backoff", backoff, "error", lastErr)
			e.events.PublishEvent(ctx, Event{
				Type: EventStageFailed, WorkflowID: req.WorkflowID, DocumentID: req.DocumentID,
				Stage: stage, Attempt: attempt, Error: lastErr.Error(), Timestamp: time.Now(),
			})
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(backoff):
				continue
			}
			break
		}
	}

	if lastErr != nil {
		shielded := context.WithoutCancel(ctx)
		if err := e.markers.FailStage(shielded, req.WorkflowID, req.DocumentID, stage, lastErr.Error()); err != nil {
			e.logger.Error("Failed to record stage failure",
				"workflow_id", req.WorkflowID, "stage", stage, "error", err)
		}
		return nil, fmt.Errorf("stage %s: %w", stage, lastErr)
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal %s summary: %w", stage, err)
	}
	if err := e.markers.CompleteStage(ctx, req.WorkflowID, req.DocumentID, stage, data); err != nil {
		return nil, fmt.Errorf("complete stage %s: %w", stage, err)
	}
	e.events.PublishEvent(ctx, Event{
		Type: EventStageCompleted, WorkflowID: req.WorkflowID, DocumentID: req.DocumentID,
		Stage: stage, Timestamp: time.Now(),
	})

	return data, nil
}

// startHeartbeat refreshes run liveness until the returned stop function is
// called.
func (e *Engine) startHeartbeat(ctx context.Context, workflowID string) func() {
	if e.runs == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.runs.Heartbeat(ctx, workflowID); err != nil {
					e.logger.Warn("Heartbeat failed", "workflow_id", workflowID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

func (e *Engine) failRun(ctx context.Context, req Request, stage document.Stage, stageErr error) {
	shielded := context.WithoutCancel(ctx)
	e.updateRun(shielded, req.WorkflowID, func(state *storage.RunState) {
		state.Status = storage.RunFailed
		state.CurrentStage = string(stage)
		state.Error = stageErr.Error()
	})
	e.events.PublishEvent(shielded, Event{
		Type: EventRunFailed, WorkflowID: req.WorkflowID, DocumentID: req.DocumentID,
		Stage: stage, Error: stageErr.Error(), Timestamp: time.Now(),
	})
}

func (e *Engine) updateRun(ctx context.Context, workflowID string, mutate func(*storage.RunState)) {
	if e.runs == nil {
		return
	}
	state, err := e.runs.Get(ctx, workflowID)
	if err != nil {
		e.logger.Warn("Run state unavailable", "workflow_id", workflowID, "error", err)
		return
	}
	mutate(state)
	if err := e.runs.Update(ctx, state); err != nil {
		e.logger.Warn("Run state update failed", "workflow_id", workflowID, "error", err)
	}
}
