package canonical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/storage"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	GetEntityByFingerprint(ctx context.Context, fingerprint string) (*document.CanonicalEntity, error)
	CreateEntity(ctx context.Context, e *document.CanonicalEntity) error
	UpdateEntity(ctx context.Context, e *document.CanonicalEntity) error
	DeleteEntity(ctx context.Context, id string) error
	CreateRelationship(ctx context.Context, r *document.Relationship) error
	DeleteRelationshipsByWorkflow(ctx context.Context, workflowID string) error
}

// SagaLog tracks canonical entity ids created during one enrichment run so
// a failure can undo exactly that work and nothing else.
type SagaLog struct {
	WorkflowID string
	CreatedIDs []string
}

// Record appends a created id to the log.
func (s *SagaLog) Record(id string) {
	s.CreatedIDs = append(s.CreatedIDs, id)
}

// Resolver matches aggregated entities against canonical identities.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// ResolveResult pairs an aggregate with its canonical identity.
type ResolveResult struct {
	Canonical *document.CanonicalEntity
	Created   bool
}

// Resolve merges-or-creates a canonical entity for each aggregate. Every
// creation is recorded in the saga log before any further work, so a crash
// mid-run still leaves the log accurate for rollback.
func (r *Resolver) Resolve(ctx context.Context, workflowID string, aggregates []AggregatedEntity, saga *SagaLog) ([]ResolveResult, error) {
	results := make([]ResolveResult, 0, len(aggregates))

	for i := range aggregates {
		agg := &aggregates[i]
		fingerprint := agg.Fingerprint()

		existing, err := r.store.GetEntityByFingerprint(ctx, fingerprint)
		switch {
		case err == nil:
			merged := mergeCanonical(existing, agg)
			if err := r.store.UpdateEntity(ctx, merged); err != nil {
				return results, fmt.Errorf("update canonical %s: %w", existing.ID, err)
			}
			results = append(results, ResolveResult{Canonical: merged})

		case errors.Is(err, storage.ErrNotFound):
			entity := &document.CanonicalEntity{
				Type:        agg.Type,
				Name:        agg.Name,
				Fingerprint: fingerprint,
				Attributes:  agg.Attributes,
				Confidence:  agg.Confidence,
				WorkflowID:  workflowID,
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}
			if err := r.store.CreateEntity(ctx, entity); err != nil {
				return results, fmt.Errorf("create canonical %s %q: %w", agg.Type, agg.Name, err)
			}
			saga.Record(entity.ID)
			results = append(results, ResolveResult{Canonical: entity, Created: true})

		default:
			return results, fmt.Errorf("lookup fingerprint %s: %w", fingerprint, err)
		}
	}

	r.logger.Info("Canonical resolution complete",
		"workflow_id", workflowID,
		"entities", len(results),
		"created", len(saga.CreatedIDs))

	return results, nil
}

// mergeCanonical folds an aggregate into an existing canonical entity:
// repeated observation raises confidence, new attributes fill gaps.
func mergeCanonical(existing *document.CanonicalEntity, agg *AggregatedEntity) *document.CanonicalEntity {
	if existing.Attributes == nil {
		existing.Attributes = make(map[string]any)
	}
	for k, v := range agg.Attributes {
		if _, ok := existing.Attributes[k]; !ok {
			existing.Attributes[k] = v
		}
	}

	if agg.Confidence > existing.Confidence {
		existing.Confidence = agg.Confidence
	} else {
		// Confirmation from another document nudges confidence up.
		existing.Confidence = min(existing.Confidence+0.02, 0.99)
	}
	existing.UpdatedAt = time.Now()
	return existing
}

// Rollback deletes the entities created in this run, newest first, plus the
// run's relationships. It is idempotent: already-deleted rows are skipped.
func (r *Resolver) Rollback(ctx context.Context, saga *SagaLog) error {
	if err := r.store.DeleteRelationshipsByWorkflow(ctx, saga.WorkflowID); err != nil {
		return fmt.Errorf("rollback relationships for %s: %w", saga.WorkflowID, err)
	}

	for i := len(saga.CreatedIDs) - 1; i >= 0; i-- {
		id := saga.CreatedIDs[i]
		if err := r.store.DeleteEntity(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("rollback entity %s: %w", id, err)
		}
	}

	r.logger.Warn("Canonical saga rolled back",
		"workflow_id", saga.WorkflowID,
		"entities_removed", len(saga.CreatedIDs))
	return nil
}
