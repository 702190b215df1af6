package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/policypipe/document"
)

// GetEntityByFingerprint looks up a canonical entity by its deterministic
// fingerprint. The resolver calls this before deciding create vs merge.
func (s *Store) GetEntityByFingerprint(ctx context.Context, fingerprint string) (*document.CanonicalEntity, error) {
	return s.scanEntity(s.db.QueryRowContext(ctx, `
		SELECT id, type, name, fingerprint, attributes, confidence, workflow_id, created_at, updated_at
		FROM canonical_entities WHERE fingerprint = $1`, fingerprint))
}

// GetEntity retrieves a canonical entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*document.CanonicalEntity, error) {
	return s.scanEntity(s.db.QueryRowContext(ctx, `
		SELECT id, type, name, fingerprint, attributes, confidence, workflow_id, created_at, updated_at
		FROM canonical_entities WHERE id = $1`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEntity(row rowScanner) (*document.CanonicalEntity, error) {
	var e document.CanonicalEntity
	var attrs []byte
	err := row.Scan(&e.ID, &e.Type, &e.Name, &e.Fingerprint, &attrs, &e.Confidence, &e.WorkflowID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get canonical entity: %w", notFound(err))
	}
	if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal entity attributes: %w", err)
	}
	return &e, nil
}

// CreateEntity inserts a new canonical entity.
func (s *Store) CreateEntity(ctx context.Context, e *document.CanonicalEntity) error {
	if e.ID == "" {
		e.ID = "ent:" + uuid.New().String()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal entity attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO canonical_entities (id, type, name, fingerprint, attributes, confidence, workflow_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Type, e.Name, e.Fingerprint, attrs, e.Confidence, e.WorkflowID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert canonical entity %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEntity persists merged attributes onto an existing canonical entity.
func (s *Store) UpdateEntity(ctx context.Context, e *document.CanonicalEntity) error {
	e.UpdatedAt = time.Now()

	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal entity attributes: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE canonical_entities
		SET name = $2, attributes = $3, confidence = $4, updated_at = $5
		WHERE id = $1`,
		e.ID, e.Name, attrs, e.Confidence, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update canonical entity %s: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update canonical entity %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

// DeleteEntity removes a canonical entity. Used by the saga rollback for
// entities created during a failed enrichment run; relationships cascade.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM canonical_entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete canonical entity %s: %w", id, err)
	}
	return nil
}

// ListEntitiesByWorkflow returns the canonical entities created or touched
// by a workflow run.
func (s *Store) ListEntitiesByWorkflow(ctx context.Context, workflowID string) ([]document.CanonicalEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, fingerprint, attributes, confidence, workflow_id, created_at, updated_at
		FROM canonical_entities WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("query entities for workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var entities []document.CanonicalEntity
	for rows.Next() {
		var e document.CanonicalEntity
		var attrs []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &e.Fingerprint, &attrs, &e.Confidence, &e.WorkflowID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal entity attributes: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// CreateRelationship inserts a relationship between canonical entities.
// Duplicate (source, target, type) rows are ignored so re-extraction is
// idempotent.
func (s *Store) CreateRelationship(ctx context.Context, r *document.Relationship) error {
	if !document.KnownRelationshipTypes[r.Type] {
		return fmt.Errorf("unknown relationship type %q", r.Type)
	}
	if r.ID == "" {
		r.ID = "rel:" + uuid.New().String()
	}
	r.CreatedAt = time.Now()

	attrs, err := json.Marshal(r.Attributes)
	if err != nil {
		return fmt.Errorf("marshal relationship attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_relationships (id, source_canonical_id, target_canonical_id, type, evidence, confidence, workflow_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_canonical_id, target_canonical_id, type) DO NOTHING`,
		r.ID, r.SourceID, r.TargetID, r.Type, attrs, r.Confidence, r.WorkflowID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert relationship %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRelationshipsByWorkflow removes the relationships created by a
// workflow run. Used by the saga rollback.
func (s *Store) DeleteRelationshipsByWorkflow(ctx context.Context, workflowID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_relationships WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("delete relationships for workflow %s: %w", workflowID, err)
	}
	return nil
}

// ListRelationships returns the relationships where the given entity is the
// source.
func (s *Store) ListRelationships(ctx context.Context, sourceID string) ([]document.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_canonical_id, target_canonical_id, type, evidence, confidence, workflow_id, created_at
		FROM entity_relationships WHERE source_canonical_id = $1 ORDER BY created_at`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query relationships for %s: %w", sourceID, err)
	}
	defer rows.Close()

	var rels []document.Relationship
	for rows.Next() {
		var r document.Relationship
		var attrs []byte
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &attrs, &r.Confidence, &r.WorkflowID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal relationship attributes: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
