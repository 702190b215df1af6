package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TableType classifies an extracted table for domain materialisation.
type TableType string

const (
	TablePropertySOV          TableType = "property_sov"
	TableLossRun              TableType = "loss_run"
	TableInlandMarineSchedule TableType = "inland_marine_schedule"
	TableAutoSchedule         TableType = "auto_schedule"
	TablePremiumSchedule      TableType = "premium_schedule"
	TableOther                TableType = "other"
)

// TableExtractionSource records which path produced the table cells.
type TableExtractionSource string

const (
	TableSourceStructural TableExtractionSource = "structural"
	TableSourceMarkdown   TableExtractionSource = "markdown"
)

// TableCell is one cell of a structural table.
type TableCell struct {
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Text     string `json:"text"`
	RowSpan  int    `json:"rowspan,omitempty"`
	ColSpan  int    `json:"colspan,omitempty"`
	IsHeader bool   `json:"is_header,omitempty"`
}

// BBox is a table bounding box in page coordinates.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// TableJSON is a structurally extracted table, captured during OCR or
// recovered from markdown as a fallback.
type TableJSON struct {
	TableID     string                `json:"table_id" db:"table_id"`
	DocumentID  string                `json:"document_id" db:"document_id"`
	PageNumber  int                   `json:"page_number" db:"page_number"`
	TableIndex  int                   `json:"table_index" db:"table_index"`
	BBox        *BBox                 `json:"bbox,omitempty"`
	Cells       []TableCell           `json:"cells"`
	HeaderRows  int                   `json:"header_rows"`
	NumRows     int                   `json:"num_rows" db:"num_rows"`
	NumCols     int                   `json:"num_cols" db:"num_cols"`
	Source      TableExtractionSource `json:"extraction_source" db:"extraction_source"`
	Confidence  float64               `json:"confidence" db:"confidence"`
	RawMarkdown string                `json:"raw_markdown,omitempty"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
}

// DeriveTableID computes the stable identifier for a table: a content-free
// function of (document, page, index) so re-extraction reproduces the ID.
func DeriveTableID(documentID string, page, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", documentID, page, index)))
	return "tbl:" + hex.EncodeToString(sum[:8])
}

// Validate checks the cell-grid invariant: every cell position must fall
// inside the declared num_rows x num_cols grid.
func (t *TableJSON) Validate() error {
	if t.TableID == "" {
		return fmt.Errorf("table has no ID")
	}
	for _, c := range t.Cells {
		if c.Row < 0 || c.Row >= t.NumRows || c.Col < 0 || c.Col >= t.NumCols {
			return fmt.Errorf("table %s cell (%d,%d) outside %dx%d grid",
				t.TableID, c.Row, c.Col, t.NumRows, t.NumCols)
		}
	}
	return nil
}

// HeaderTexts returns the texts of the first header row, in column order.
func (t *TableJSON) HeaderTexts() []string {
	headers := make([]string, t.NumCols)
	for _, c := range t.Cells {
		if c.Row == 0 && c.Col >= 0 && c.Col < t.NumCols {
			headers[c.Col] = c.Text
		}
	}
	return headers
}

// Row returns the cell texts of row r in column order.
func (t *TableJSON) Row(r int) []string {
	row := make([]string, t.NumCols)
	for _, c := range t.Cells {
		if c.Row == r && c.Col >= 0 && c.Col < t.NumCols {
			row[c.Col] = c.Text
		}
	}
	return row
}

// TableClassification is the rules scorer's verdict for a table.
type TableClassification struct {
	TableID    string    `json:"table_id" db:"table_id"`
	Type       TableType `json:"type" db:"type"`
	Confidence float64   `json:"confidence" db:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty" db:"reasoning"`
}

// SOVItem is a normalized statement-of-values row.
type SOVItem struct {
	ID              string    `json:"id" db:"id"`
	DocumentID      string    `json:"document_id" db:"document_id"`
	TableID         string    `json:"table_id" db:"table_id"`
	LocationNumber  string    `json:"location_number,omitempty" db:"location_number"`
	Address         string    `json:"address,omitempty" db:"address"`
	BuildingValue   float64   `json:"building_value" db:"building_value"`
	ContentsValue   float64   `json:"contents_value" db:"contents_value"`
	BusinessIncome  float64   `json:"business_income" db:"business_income"`
	TotalInsured    float64   `json:"total_insured_value" db:"total_insured_value"`
	ConstructionType string   `json:"construction_type,omitempty" db:"construction_type"`
	YearBuilt       int       `json:"year_built,omitempty" db:"year_built"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Validate enforces SOV domain invariants.
func (s *SOVItem) Validate() error {
	if s.TotalInsured < 0 {
		return fmt.Errorf("sov item %s: TIV must be non-negative, got %f", s.ID, s.TotalInsured)
	}
	if s.BuildingValue < 0 || s.ContentsValue < 0 || s.BusinessIncome < 0 {
		return fmt.Errorf("sov item %s: values must be non-negative", s.ID)
	}
	return nil
}

// LossRunClaim is a normalized loss-run row.
type LossRunClaim struct {
	ID          string     `json:"id" db:"id"`
	DocumentID  string     `json:"document_id" db:"document_id"`
	TableID     string     `json:"table_id" db:"table_id"`
	ClaimNumber string     `json:"claim_number,omitempty" db:"claim_number"`
	LossDate    *time.Time `json:"loss_date,omitempty" db:"loss_date"`
	Description string     `json:"description,omitempty" db:"description"`
	PaidAmount  float64    `json:"paid_amount" db:"paid_amount"`
	Reserved    float64    `json:"reserved" db:"reserved"`
	TotalIncurred float64  `json:"total_incurred" db:"total_incurred"`
	Status      string     `json:"status,omitempty" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
