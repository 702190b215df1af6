// Package document defines the domain model for the policy document
// pipeline: documents, pages, manifests, tables, chunks, extractions,
// canonical entities, and synthesized provisions.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage identifies one of the four pipeline stages.
type Stage string

const (
	StageProcessed  Stage = "processed"
	StageExtracted  Stage = "extracted"
	StageEnriched   Stage = "enriched"
	StageSummarized Stage = "summarized"
)

// Stages lists the pipeline stages in dependency order.
var Stages = []Stage{StageProcessed, StageExtracted, StageEnriched, StageSummarized}

// StageDependencies maps each stage to the stages that must complete first.
var StageDependencies = map[Stage][]Stage{
	StageProcessed:  {},
	StageExtracted:  {StageProcessed},
	StageEnriched:   {StageExtracted},
	StageSummarized: {StageEnriched},
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageProcessed, StageExtracted, StageEnriched, StageSummarized:
		return true
	}
	return false
}

// ProcessingStatus tracks how far a document has progressed.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusExtracted  ProcessingStatus = "extracted"
	StatusEnriched   ProcessingStatus = "enriched"
	StatusSummarized ProcessingStatus = "summarized"
	StatusFailed     ProcessingStatus = "failed"
)

// Document is the root entity for an ingested file. It is created on ingest
// and mutated only by stage status updates; the pipeline never deletes it.
type Document struct {
	ID        string           `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	FilePath  string           `json:"file_path" db:"file_path"`
	Bucket    string           `json:"bucket,omitempty" db:"bucket"`
	MimeType  string           `json:"mime_type" db:"mime_type"`
	PageCount int              `json:"page_count" db:"page_count"`
	Status    ProcessingStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// NewDocumentID generates a document identifier.
// Format: doc:<uuid>, matching the typed-ID convention used across stores.
func NewDocumentID() string {
	return "doc:" + uuid.New().String()
}

// Validate checks structural invariants on the document record.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if d.FilePath == "" {
		return fmt.Errorf("document %s has no file path", d.ID)
	}
	if d.PageCount < 0 {
		return fmt.Errorf("document %s has impossible page count %d", d.ID, d.PageCount)
	}
	return nil
}

// Slugify normalizes a name into a stable lowercase identifier fragment.
// Used for within-document entity IDs and taxonomy fallbacks.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
