//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semstreams/natsclient"
)

func TestRunStore_Lifecycle(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	js, err := tc.Client.JetStream()
	if err != nil {
		t.Fatalf("JetStream() error = %v", err)
	}

	store, err := NewRunStore(ctx, js)
	if err != nil {
		t.Fatalf("NewRunStore() error = %v", err)
	}

	state := &RunState{
		WorkflowID: NewWorkflowID(),
		DocumentID: "doc:test-1",
		Product:    "document-processing",
	}

	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if state.Status != RunPending {
		t.Errorf("new run status = %s, want %s", state.Status, RunPending)
	}

	got, err := store.Get(ctx, state.WorkflowID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DocumentID != "doc:test-1" {
		t.Errorf("DocumentID = %s, want doc:test-1", got.DocumentID)
	}

	got.Status = RunRunning
	got.CurrentStage = "extracted"
	got.Progress = 0.5
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	before := got.HeartbeatAt
	if err := store.Heartbeat(ctx, state.WorkflowID); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	got, err = store.Get(ctx, state.WorkflowID)
	if err != nil {
		t.Fatalf("Get() after heartbeat error = %v", err)
	}
	if !got.HeartbeatAt.After(before) {
		t.Error("heartbeat timestamp did not advance")
	}
	if got.Status != RunRunning || got.Progress != 0.5 {
		t.Errorf("heartbeat must preserve status and progress, got %s/%f", got.Status, got.Progress)
	}

	runs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) == 0 {
		t.Error("List() returned no runs")
	}

	if _, err := store.Get(ctx, "wf:missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}
