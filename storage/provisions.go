package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360studio/policypipe/document"
)

// ProvisionKind distinguishes the two effective-provision families.
type ProvisionKind string

const (
	KindCoverage  ProvisionKind = "coverage"
	KindExclusion ProvisionKind = "exclusion"
)

// ReplaceEffectiveProvisions replaces the synthesized provisions of one kind
// for a document. Synthesis always produces the full set, so partial updates
// are never needed.
func (s *Store) ReplaceEffectiveProvisions(ctx context.Context, documentID string, kind ProvisionKind, provisions []document.EffectiveProvision) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace provisions: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM effective_provisions WHERE document_id = $1 AND kind = $2`, documentID, kind); err != nil {
		return fmt.Errorf("clear %s provisions for %s: %w", kind, documentID, err)
	}

	for i := range provisions {
		p := &provisions[i]
		if len(p.Sources) == 0 {
			return fmt.Errorf("provision %q has no sources", p.Name)
		}

		carveBacks, err := json.Marshal(p.CarveBacks)
		if err != nil {
			return fmt.Errorf("marshal carve backs: %w", err)
		}
		conditions, err := json.Marshal(p.Conditions)
		if err != nil {
			return fmt.Errorf("marshal conditions: %w", err)
		}
		impacted, err := json.Marshal(p.ImpactedCoverages)
		if err != nil {
			return fmt.Errorf("marshal impacted coverages: %w", err)
		}
		sources, err := json.Marshal(p.Sources)
		if err != nil {
			return fmt.Errorf("marshal sources: %w", err)
		}
		pages, err := json.Marshal(p.PageNumbers)
		if err != nil {
			return fmt.Errorf("marshal page numbers: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO effective_provisions (canonical_id, document_id, kind, name, effective_state, scope, carve_backs, conditions, impacted_coverages, sources, confidence, severity, description, page_numbers, source_text, clause_reference, is_standard_provision, is_modified, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())`,
			p.CanonicalID, documentID, kind, p.Name, p.State, p.Scope,
			carveBacks, conditions, impacted, sources, p.Confidence, p.Severity,
			p.Description, pages, p.SourceText, p.ClauseReference,
			p.IsStandardProvision, p.IsModified); err != nil {
			return fmt.Errorf("insert provision %q: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

// GetEffectiveProvisions returns the synthesized provisions of one kind for
// a document.
func (s *Store) GetEffectiveProvisions(ctx context.Context, documentID string, kind ProvisionKind) ([]document.EffectiveProvision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT canonical_id, name, effective_state, scope, carve_backs, conditions, impacted_coverages, sources, confidence, severity, description, page_numbers, source_text, clause_reference, is_standard_provision, is_modified, created_at
		FROM effective_provisions WHERE document_id = $1 AND kind = $2 ORDER BY name`, documentID, kind)
	if err != nil {
		return nil, fmt.Errorf("query %s provisions for %s: %w", kind, documentID, err)
	}
	defer rows.Close()

	var provisions []document.EffectiveProvision
	for rows.Next() {
		var p document.EffectiveProvision
		var carveBacks, conditions, impacted, sources, pages []byte
		if err := rows.Scan(&p.CanonicalID, &p.Name, &p.State, &p.Scope, &carveBacks, &conditions, &impacted, &sources, &p.Confidence, &p.Severity, &p.Description, &pages, &p.SourceText, &p.ClauseReference, &p.IsStandardProvision, &p.IsModified, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan provision: %w", err)
		}
		for _, pair := range []struct {
			raw  []byte
			dest any
		}{
			{carveBacks, &p.CarveBacks},
			{conditions, &p.Conditions},
			{impacted, &p.ImpactedCoverages},
			{sources, &p.Sources},
			{pages, &p.PageNumbers},
		} {
			if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
				return nil, fmt.Errorf("unmarshal provision %q: %w", p.Name, err)
			}
		}
		provisions = append(provisions, p)
	}
	return provisions, rows.Err()
}
