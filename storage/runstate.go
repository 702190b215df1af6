package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// BucketRuns is the KV bucket holding live workflow run state. Durable facts
// live in Postgres; this bucket is the fast-changing view the status API and
// heartbeats read and write.
const BucketRuns = "POLICYPIPE_RUNS"

// RunStatus is the coarse lifecycle of a workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunState is the live state of one document workflow run.
type RunState struct {
	WorkflowID   string    `json:"workflow_id"`
	DocumentID   string    `json:"document_id"`
	Product      string    `json:"product"`
	Status       RunStatus `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`
	Progress     float64   `json:"progress"`
	Warnings     []string  `json:"warnings,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	HeartbeatAt  time.Time `json:"heartbeat_at"`
}

// NewWorkflowID generates a workflow run identifier.
func NewWorkflowID() string {
	return "wf:" + uuid.New().String()
}

// RunStore provides workflow run state storage backed by NATS KV.
type RunStore struct {
	kv jetstream.KeyValue
}

// NewRunStore creates the run store, creating the KV bucket if needed.
func NewRunStore(ctx context.Context, js jetstream.JetStream) (*RunStore, error) {
	kv, err := js.KeyValue(ctx, BucketRuns)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketRuns,
			Description: "Policypipe workflow run state",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create runs bucket: %w", err)
		}
	}
	return &RunStore{kv: kv}, nil
}

// runKey strips the "wf:" prefix; KV keys cannot contain colons.
func runKey(workflowID string) string {
	return strings.TrimPrefix(workflowID, "wf:")
}

// Create stores a new run state. Fails if the workflow already exists.
func (r *RunStore) Create(ctx context.Context, state *RunState) error {
	now := time.Now()
	state.StartedAt = now
	state.UpdatedAt = now
	state.HeartbeatAt = now
	if state.Status == "" {
		state.Status = RunPending
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	if _, err := r.kv.Create(ctx, runKey(state.WorkflowID), data); err != nil {
		return fmt.Errorf("store run %s: %w", state.WorkflowID, err)
	}
	return nil
}

// Get retrieves the run state for a workflow.
func (r *RunStore) Get(ctx context.Context, workflowID string) (*RunState, error) {
	entry, err := r.kv.Get(ctx, runKey(workflowID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run %s: %w", workflowID, err)
	}

	var state RunState
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return &state, nil
}

// Update overwrites the run state.
func (r *RunStore) Update(ctx context.Context, state *RunState) error {
	state.UpdatedAt = time.Now()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	if _, err := r.kv.Put(ctx, runKey(state.WorkflowID), data); err != nil {
		return fmt.Errorf("update run %s: %w", state.WorkflowID, err)
	}
	return nil
}

// Heartbeat refreshes the liveness timestamp for a running workflow.
func (r *RunStore) Heartbeat(ctx context.Context, workflowID string) error {
	state, err := r.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	state.HeartbeatAt = time.Now()
	return r.Update(ctx, state)
}

// List returns all run states.
func (r *RunStore) List(ctx context.Context) ([]*RunState, error) {
	keys, err := r.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	runs := make([]*RunState, 0, len(keys))
	for _, key := range keys {
		entry, err := r.kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var state RunState
		if err := json.Unmarshal(entry.Value(), &state); err != nil {
			continue
		}
		runs = append(runs, &state)
	}
	return runs, nil
}
