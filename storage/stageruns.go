package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/policypipe/document"
)

// GetStageRun returns the stage marker for (workflow, document, stage).
func (s *Store) GetStageRun(ctx context.Context, workflowID, documentID string, stage document.Stage) (*document.WorkflowStageRun, error) {
	var run document.WorkflowStageRun
	err := s.db.GetContext(ctx, &run, `
		SELECT workflow_id, document_id, stage, status, summary, error, started_at, updated_at
		FROM workflow_document_stage_runs
		WHERE workflow_id = $1 AND document_id = $2 AND stage = $3`,
		workflowID, documentID, stage)
	if err != nil {
		return nil, fmt.Errorf("get stage run %s/%s/%s: %w", workflowID, documentID, stage, notFound(err))
	}
	return &run, nil
}

// ListStageRuns returns all stage markers for a workflow and document.
func (s *Store) ListStageRuns(ctx context.Context, workflowID, documentID string) ([]document.WorkflowStageRun, error) {
	var runs []document.WorkflowStageRun
	err := s.db.SelectContext(ctx, &runs, `
		SELECT workflow_id, document_id, stage, status, summary, error, started_at, updated_at
		FROM workflow_document_stage_runs
		WHERE workflow_id = $1 AND document_id = $2`, workflowID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list stage runs for %s/%s: %w", workflowID, documentID, err)
	}
	return runs, nil
}

// BeginStage marks a stage as running. It enforces the transition rules:
// starting fresh, or retrying after failure. A completed stage refuses to
// restart, which is what makes resumption idempotent.
func (s *Store) BeginStage(ctx context.Context, workflowID, documentID string, stage document.Stage) error {
	existing, err := s.GetStageRun(ctx, workflowID, documentID, stage)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if existing != nil && !existing.CanTransition(document.StageRunning) {
		return fmt.Errorf("stage %s for %s/%s is %s: %w",
			stage, workflowID, documentID, existing.Status, ErrInvalidTransition)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_document_stage_runs (workflow_id, document_id, stage, status, started_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (workflow_id, document_id, stage) DO UPDATE SET
			status = $4, error = '', started_at = now(), updated_at = now()`,
		workflowID, documentID, stage, document.StageRunning)
	if err != nil {
		return fmt.Errorf("begin stage %s for %s/%s: %w", stage, workflowID, documentID, err)
	}
	return nil
}

// CompleteStage marks a stage as completed with an optional summary payload.
func (s *Store) CompleteStage(ctx context.Context, workflowID, documentID string, stage document.Stage, summary []byte) error {
	return s.finishStage(ctx, workflowID, documentID, stage, document.StageCompleted, summary, "")
}

// FailStage marks a stage as failed with the error message.
func (s *Store) FailStage(ctx context.Context, workflowID, documentID string, stage document.Stage, stageErr string) error {
	return s.finishStage(ctx, workflowID, documentID, stage, document.StageFailed, nil, stageErr)
}

func (s *Store) finishStage(ctx context.Context, workflowID, documentID string, stage document.Stage, status document.StageStatus, summary []byte, stageErr string) error {
	existing, err := s.GetStageRun(ctx, workflowID, documentID, stage)
	if err != nil {
		return err
	}
	if !existing.CanTransition(status) {
		return fmt.Errorf("stage %s for %s/%s is %s, cannot move to %s: %w",
			stage, workflowID, documentID, existing.Status, status, ErrInvalidTransition)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE workflow_document_stage_runs
		SET status = $4, summary = $5, error = $6, updated_at = now()
		WHERE workflow_id = $1 AND document_id = $2 AND stage = $3`,
		workflowID, documentID, stage, status, summary, stageErr)
	if err != nil {
		return fmt.Errorf("finish stage %s for %s/%s: %w", stage, workflowID, documentID, err)
	}
	return nil
}

// StageCompleted reports whether a stage already completed for this
// workflow and document. The dispatcher uses this to skip finished work on
// resume.
func (s *Store) StageCompleted(ctx context.Context, workflowID, documentID string, stage document.Stage) (bool, error) {
	run, err := s.GetStageRun(ctx, workflowID, documentID, stage)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return run.Status == document.StageCompleted, nil
}
