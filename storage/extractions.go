package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/c360studio/policypipe/document"
)

// SaveSectionExtraction stores a section extractor result. One row per
// (document, section): re-extraction supersedes the prior result.
func (s *Store) SaveSectionExtraction(ctx context.Context, ext *document.SectionExtraction) error {
	if ext.ID == "" {
		ext.ID = "ext:" + uuid.New().String()
	}

	entities, err := json.Marshal(ext.Entities)
	if err != nil {
		return fmt.Errorf("marshal extraction entities: %w", err)
	}
	sourceChunks, err := json.Marshal(ext.SourceChunks)
	if err != nil {
		return fmt.Errorf("marshal extraction source chunks: %w", err)
	}
	fields := ext.Fields
	if len(fields) == 0 {
		fields = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save extraction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM section_extractions WHERE document_id = $1 AND section_type = $2`,
		ext.DocumentID, ext.SectionType); err != nil {
		return fmt.Errorf("clear extraction for %s/%s: %w", ext.DocumentID, ext.SectionType, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO section_extractions (id, document_id, section_type, fields, entities, confidence, source_chunks, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		ext.ID, ext.DocumentID, ext.SectionType, []byte(fields), entities,
		ext.Confidence, sourceChunks, ext.ModelVersion); err != nil {
		return fmt.Errorf("insert extraction %s: %w", ext.ID, err)
	}

	return tx.Commit()
}

// GetSectionExtractions returns all extraction results for a document.
func (s *Store) GetSectionExtractions(ctx context.Context, documentID string) ([]document.SectionExtraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, section_type, fields, entities, confidence, source_chunks, model_version, created_at
		FROM section_extractions WHERE document_id = $1 ORDER BY section_type`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query extractions for %s: %w", documentID, err)
	}
	defer rows.Close()

	var exts []document.SectionExtraction
	for rows.Next() {
		var e document.SectionExtraction
		var entities, sourceChunks []byte
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.SectionType, &e.Fields, &entities, &e.Confidence, &sourceChunks, &e.ModelVersion, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		if err := json.Unmarshal(entities, &e.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal extraction entities: %w", err)
		}
		if err := json.Unmarshal(sourceChunks, &e.SourceChunks); err != nil {
			return nil, fmt.Errorf("unmarshal extraction source chunks: %w", err)
		}
		exts = append(exts, e)
	}
	return exts, rows.Err()
}
