package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/c360studio/policypipe/document"
)

// ReplaceChunks atomically replaces all chunks for a document. Chunk IDs are
// content hashes, so an unchanged document reproduces identical rows.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []document.HybridChunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM section_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear chunks for %s: %w", documentID, err)
	}

	for i := range chunks {
		c := &chunks[i]
		pages, err := json.Marshal(c.PageNumbers)
		if err != nil {
			return fmt.Errorf("marshal chunk %s pages: %w", c.ChunkID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO section_chunks (chunk_id, document_id, section_type, text, token_count, page_numbers, chunk_index, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			c.ChunkID, c.DocumentID, c.SectionType, c.Text, c.TokenCount, pages, c.Index); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// GetChunks returns all chunks for a document in document order.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]document.HybridChunk, error) {
	return s.queryChunks(ctx, `
		SELECT chunk_id, document_id, section_type, text, token_count, page_numbers, chunk_index, created_at
		FROM section_chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
}

// GetChunksBySection returns the chunks of one section in document order.
func (s *Store) GetChunksBySection(ctx context.Context, documentID string, section document.SectionType) ([]document.HybridChunk, error) {
	return s.queryChunks(ctx, `
		SELECT chunk_id, document_id, section_type, text, token_count, page_numbers, chunk_index, created_at
		FROM section_chunks WHERE document_id = $1 AND section_type = $2 ORDER BY chunk_index`, documentID, section)
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]document.HybridChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []document.HybridChunk
	for rows.Next() {
		var c document.HybridChunk
		var pages []byte
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.SectionType, &c.Text, &c.TokenCount, &pages, &c.Index, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(pages, &c.PageNumbers); err != nil {
			return nil, fmt.Errorf("unmarshal chunk %s pages: %w", c.ChunkID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SaveEmbeddings stores embedding rows. Existing rows for the same chunk or
// entity are replaced so re-indexing is idempotent.
func (s *Store) SaveEmbeddings(ctx context.Context, embeddings []document.VectorEmbedding) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save embeddings: %w", err)
	}
	defer tx.Rollback()

	for i := range embeddings {
		e := &embeddings[i]
		if e.ID == "" {
			e.ID = "emb:" + uuid.New().String()
		}
		pages, err := json.Marshal(e.PageNumbers)
		if err != nil {
			return fmt.Errorf("marshal embedding pages: %w", err)
		}

		if e.ChunkID != "" {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM chunk_embeddings WHERE document_id = $1 AND chunk_id = $2`,
				e.DocumentID, e.ChunkID); err != nil {
				return fmt.Errorf("clear embedding for chunk %s: %w", e.ChunkID, err)
			}
		}
		if e.CanonicalEntityID != "" {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM chunk_embeddings WHERE document_id = $1 AND canonical_entity_id = $2`,
				e.DocumentID, e.CanonicalEntityID); err != nil {
				return fmt.Errorf("clear embedding for entity %s: %w", e.CanonicalEntityID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_embeddings (id, document_id, chunk_id, canonical_entity_id, section_type, entity_type, content, page_numbers, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			e.ID, e.DocumentID, e.ChunkID, e.CanonicalEntityID, e.SectionType,
			e.EntityType, e.Content, pages, pgvector.NewVector(e.Embedding)); err != nil {
			return fmt.Errorf("insert embedding %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// SimilarChunk is one vector search hit.
type SimilarChunk struct {
	ChunkID     string               `json:"chunk_id"`
	DocumentID  string               `json:"document_id"`
	SectionType document.SectionType `json:"section_type"`
	Content     string               `json:"content"`
	Distance    float64              `json:"distance"`
}

// SearchSimilar runs a cosine-distance search over chunk embeddings.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, limit int) ([]SimilarChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, section_type, content, embedding <=> $1 AS distance
		FROM chunk_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []SimilarChunk
	for rows.Next() {
		var h SimilarChunk
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.SectionType, &h.Content, &h.Distance); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
