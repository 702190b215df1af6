package document

import (
	"fmt"
	"time"
)

// PageType classifies a page for processing decisions.
type PageType string

const (
	PageTypeDeclarations PageType = "declarations"
	PageTypeDefinitions  PageType = "definitions"
	PageTypeCoverages    PageType = "coverages"
	PageTypeConditions   PageType = "conditions"
	PageTypeExclusions   PageType = "exclusions"
	PageTypeEndorsements PageType = "endorsements"
	PageTypeSchedule     PageType = "schedule"
	PageTypeBoilerplate  PageType = "boilerplate"
	PageTypeDuplicate    PageType = "duplicate"
	PageTypeOther        PageType = "other"
)

// SectionType identifies the policy section a page or chunk belongs to.
// Section types mirror page types for content-bearing pages; the manifest's
// page-to-section map is the single authority downstream.
type SectionType string

const (
	SectionDeclarations         SectionType = "declarations"
	SectionDefinitions          SectionType = "definitions"
	SectionCoverages            SectionType = "coverages"
	SectionConditions           SectionType = "conditions"
	SectionExclusions           SectionType = "exclusions"
	SectionEndorsements         SectionType = "endorsements"
	SectionSchedule             SectionType = "schedule"
	SectionInsuringAgreement    SectionType = "insuring_agreement"
	SectionPremiumSummary       SectionType = "premium_summary"
	SectionEndorsementProvision SectionType = "endorsement_provisions"
	SectionBaseForm             SectionType = "base_form"
	SectionOther                SectionType = "other"
)

// ProcessingPriority returns the extraction ordering for a section.
// Lower values run first; declarations carry the identity-bearing fields
// every later section depends on.
func (s SectionType) ProcessingPriority() int {
	switch s {
	case SectionDeclarations:
		return 0
	case SectionInsuringAgreement:
		return 1
	case SectionCoverages:
		return 2
	case SectionConditions:
		return 3
	case SectionExclusions:
		return 4
	case SectionEndorsements, SectionEndorsementProvision:
		return 5
	case SectionDefinitions:
		return 6
	case SectionPremiumSummary:
		return 7
	case SectionSchedule:
		return 8
	default:
		return 9
	}
}

// RequiresLLM reports whether the section needs an LLM extractor.
// Schedules are purely structural (table-driven) and are handled by the
// table pipeline instead.
func (s SectionType) RequiresLLM() bool {
	switch s {
	case SectionSchedule, SectionOther:
		return false
	}
	return true
}

// PageDimensions holds the physical geometry of a page.
type PageDimensions struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

// Page is the OCR output for a single document page. Pages are replaced
// atomically when a document is re-extracted.
type Page struct {
	DocumentID string         `json:"document_id" db:"document_id"`
	PageNumber int            `json:"page_number" db:"page_number"`
	Text       string         `json:"text" db:"text"`
	Markdown   string         `json:"markdown" db:"markdown"`
	Dimensions PageDimensions `json:"dimensions"`
	Metadata   PageMetadata   `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// PageMetadata is the per-page metadata bag populated during OCR.
type PageMetadata struct {
	HasTables        bool        `json:"has_tables"`
	StructuralTables []TableJSON `json:"structural_tables,omitempty"`
	Source           string      `json:"source,omitempty"`
	WordBoxes        []WordBox   `json:"word_boxes,omitempty"`
}

// WordBox is a word-level coordinate from the secondary PDF pass,
// used for citation mapping.
type WordBox struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// Validate checks page invariants (I1).
func (p *Page) Validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("page has no document ID")
	}
	if p.PageNumber < 1 {
		return fmt.Errorf("page number must be >= 1, got %d", p.PageNumber)
	}
	return nil
}

// PageSignal holds the lightweight per-page features computed before OCR.
type PageSignal struct {
	DocumentID  string  `json:"document_id"`
	PageNumber  int     `json:"page_number"`
	TextDensity float64 `json:"text_density"`
	HasTables   bool    `json:"has_tables"`
	Fingerprint string  `json:"fingerprint"`
	CharCount   int     `json:"char_count"`
}

// PageClassification is the rule classifier's verdict for a page.
type PageClassification struct {
	DocumentID    string   `json:"document_id"`
	PageNumber    int      `json:"page_number"`
	PageType      PageType `json:"page_type"`
	Confidence    float64  `json:"confidence"`
	ShouldProcess bool     `json:"should_process"`
	DuplicateOf   int      `json:"duplicate_of,omitempty"` // 0 when not a duplicate
}

// SectionBoundary marks a contiguous run of pages sharing a section type.
type SectionBoundary struct {
	SectionType SectionType `json:"section_type"`
	StartPage   int         `json:"start_page"`
	EndPage     int         `json:"end_page"`
	Confidence  float64     `json:"confidence"`
	AnchorText  string      `json:"anchor_text,omitempty"`
}

// DocumentProfile summarizes what kind of document this is.
type DocumentProfile struct {
	DocumentType      string            `json:"document_type"`
	Subtype           string            `json:"subtype,omitempty"`
	Confidence        float64           `json:"confidence"`
	SectionBoundaries []SectionBoundary `json:"section_boundaries"`
}

// PageManifest is the per-document processing plan. One per document;
// superseded wholesale on re-analysis.
type PageManifest struct {
	DocumentID      string              `json:"document_id" db:"document_id"`
	TotalPages      int                 `json:"total_pages" db:"total_pages"`
	PagesToProcess  []int               `json:"pages_to_process"`
	PagesSkipped    []int               `json:"pages_skipped"`
	ProcessingRatio float64             `json:"processing_ratio"`
	Profile         DocumentProfile     `json:"profile"`
	PageSectionMap  map[int]SectionType `json:"page_section_map"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
}

// Validate checks manifest invariants (I2): page sets within range and
// disjoint.
func (m *PageManifest) Validate() error {
	seen := make(map[int]bool, len(m.PagesToProcess))
	for _, p := range m.PagesToProcess {
		if p < 1 || p > m.TotalPages {
			return fmt.Errorf("pages_to_process contains %d, outside 1..%d", p, m.TotalPages)
		}
		seen[p] = true
	}
	for _, p := range m.PagesSkipped {
		if p < 1 || p > m.TotalPages {
			return fmt.Errorf("pages_skipped contains %d, outside 1..%d", p, m.TotalPages)
		}
		if seen[p] {
			return fmt.Errorf("page %d is both processed and skipped", p)
		}
	}
	return nil
}

// SectionFor resolves a page to its section type. Pages absent from the map
// default to SectionOther.
func (m *PageManifest) SectionFor(page int) SectionType {
	if s, ok := m.PageSectionMap[page]; ok {
		return s
	}
	return SectionOther
}
