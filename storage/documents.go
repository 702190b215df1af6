package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/policypipe/document"
)

// CreateDocument inserts a new document record.
func (s *Store) CreateDocument(ctx context.Context, doc *document.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, file_path, bucket, mime_type, page_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.Name, doc.FilePath, doc.Bucket, doc.MimeType,
		doc.PageCount, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var doc document.Document
	err := s.db.GetContext(ctx, &doc, `
		SELECT id, name, file_path, bucket, mime_type, page_count, status, created_at, updated_at
		FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, notFound(err))
	}
	return &doc, nil
}

// UpdateDocumentStatus moves a document to a new processing status.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status document.ProcessingStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update document %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update document %s status: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateDocumentPageCount records the page count discovered during analysis.
func (s *Store) UpdateDocumentPageCount(ctx context.Context, id string, pages int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET page_count = $2, updated_at = now() WHERE id = $1`, id, pages)
	if err != nil {
		return fmt.Errorf("update document %s page count: %w", id, err)
	}
	return nil
}

// ReplacePages atomically replaces all pages for a document. OCR re-runs
// must never leave a mix of old and new page rows.
func (s *Store) ReplacePages(ctx context.Context, documentID string, pages []document.Page) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace pages: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_pages WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear pages for %s: %w", documentID, err)
	}

	for i := range pages {
		p := &pages[i]
		if err := p.Validate(); err != nil {
			return err
		}

		dims, err := json.Marshal(p.Dimensions)
		if err != nil {
			return fmt.Errorf("marshal page %d dimensions: %w", p.PageNumber, err)
		}
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshal page %d metadata: %w", p.PageNumber, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_pages (document_id, page_number, text, markdown, dimensions, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())`,
			p.DocumentID, p.PageNumber, p.Text, p.Markdown, dims, meta); err != nil {
			return fmt.Errorf("insert page %d for %s: %w", p.PageNumber, documentID, err)
		}
	}

	return tx.Commit()
}

// GetPages returns all pages for a document ordered by page number.
func (s *Store) GetPages(ctx context.Context, documentID string) ([]document.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, page_number, text, markdown, dimensions, metadata, created_at
		FROM document_pages WHERE document_id = $1 ORDER BY page_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query pages for %s: %w", documentID, err)
	}
	defer rows.Close()

	var pages []document.Page
	for rows.Next() {
		var p document.Page
		var dims, meta []byte
		if err := rows.Scan(&p.DocumentID, &p.PageNumber, &p.Text, &p.Markdown, &dims, &meta, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if err := json.Unmarshal(dims, &p.Dimensions); err != nil {
			return nil, fmt.Errorf("unmarshal page %d dimensions: %w", p.PageNumber, err)
		}
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal page %d metadata: %w", p.PageNumber, err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// SaveManifest stores the page manifest, superseding any prior manifest for
// the document.
func (s *Store) SaveManifest(ctx context.Context, m *document.PageManifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	toProcess, err := json.Marshal(m.PagesToProcess)
	if err != nil {
		return fmt.Errorf("marshal pages_to_process: %w", err)
	}
	skipped, err := json.Marshal(m.PagesSkipped)
	if err != nil {
		return fmt.Errorf("marshal pages_skipped: %w", err)
	}
	profile, err := json.Marshal(m.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	sectionMap, err := json.Marshal(m.PageSectionMap)
	if err != nil {
		return fmt.Errorf("marshal page_section_map: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO page_manifests (document_id, total_pages, pages_to_process, pages_skipped, processing_ratio, profile, page_section_map, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (document_id) DO UPDATE SET
			total_pages = EXCLUDED.total_pages,
			pages_to_process = EXCLUDED.pages_to_process,
			pages_skipped = EXCLUDED.pages_skipped,
			processing_ratio = EXCLUDED.processing_ratio,
			profile = EXCLUDED.profile,
			page_section_map = EXCLUDED.page_section_map,
			created_at = now()`,
		m.DocumentID, m.TotalPages, toProcess, skipped, m.ProcessingRatio, profile, sectionMap)
	if err != nil {
		return fmt.Errorf("save manifest for %s: %w", m.DocumentID, err)
	}
	return nil
}

// GetManifest retrieves the page manifest for a document.
func (s *Store) GetManifest(ctx context.Context, documentID string) (*document.PageManifest, error) {
	var m document.PageManifest
	var toProcess, skipped, profile, sectionMap []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, total_pages, pages_to_process, pages_skipped, processing_ratio, profile, page_section_map, created_at
		FROM page_manifests WHERE document_id = $1`, documentID).
		Scan(&m.DocumentID, &m.TotalPages, &toProcess, &skipped, &m.ProcessingRatio, &profile, &sectionMap, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get manifest for %s: %w", documentID, notFound(err))
	}

	if err := json.Unmarshal(toProcess, &m.PagesToProcess); err != nil {
		return nil, fmt.Errorf("unmarshal pages_to_process: %w", err)
	}
	if err := json.Unmarshal(skipped, &m.PagesSkipped); err != nil {
		return nil, fmt.Errorf("unmarshal pages_skipped: %w", err)
	}
	if err := json.Unmarshal(profile, &m.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if err := json.Unmarshal(sectionMap, &m.PageSectionMap); err != nil {
		return nil, fmt.Errorf("unmarshal page_section_map: %w", err)
	}

	return &m, nil
}
