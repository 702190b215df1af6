package tables

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/storage"
)

// Stats summarises one table-processing run for the stage record.
type Stats struct {
	TablesFound   int            `json:"tables_found"`
	TablesByType  map[string]int `json:"tables_by_type"`
	SOVItems      int            `json:"sov_items"`
	LossRunClaims int            `json:"loss_run_claims"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// Processor extracts, classifies, normalizes, and persists document tables.
type Processor struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewProcessor creates a table processor.
func NewProcessor(store *storage.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, logger: logger}
}

// Run processes all tables for a document. Normalized rows replace any prior
// run's rows for the document, so re-running after a retry is idempotent.
func (p *Processor) Run(ctx context.Context, documentID string, pages []document.Page) (*Stats, error) {
	pageText := make(map[int]string, len(pages))
	for _, pg := range pages {
		pageText[pg.PageNumber] = pg.Text
	}

	stats := &Stats{TablesByType: make(map[string]int)}

	for _, table := range ExtractTables(pages, p.logger) {
		table := table
		cls := ClassifyTable(&table, pageText[table.PageNumber])

		if err := p.store.SaveTable(ctx, &table, cls.Type); err != nil {
			return nil, fmt.Errorf("save table %s: %w", table.TableID, err)
		}

		stats.TablesFound++
		stats.TablesByType[string(cls.Type)]++

		switch cls.Type {
		case document.TablePropertySOV:
			items, warnings := NormalizeSOV(&table)
			if err := p.store.ReplaceSOVItems(ctx, documentID, table.TableID, items); err != nil {
				return nil, fmt.Errorf("replace sov items for %s: %w", table.TableID, err)
			}
			stats.SOVItems += len(items)
			stats.Warnings = append(stats.Warnings, warnings...)
		case document.TableLossRun:
			claims, warnings := NormalizeLossRun(&table)
			if err := p.store.ReplaceLossRunClaims(ctx, documentID, table.TableID, claims); err != nil {
				return nil, fmt.Errorf("replace loss run claims for %s: %w", table.TableID, err)
			}
			stats.LossRunClaims += len(claims)
			stats.Warnings = append(stats.Warnings, warnings...)
		default:
			// Other types stay as raw TableJSON; chunking renders them
			// into text for the extraction stage.
		}

		p.logger.Debug("Classified table",
			"document_id", documentID,
			"table_id", table.TableID,
			"type", cls.Type,
			"confidence", cls.Confidence,
			"reasoning", cls.Reasoning)
	}

	p.logger.Info("Table processing complete",
		"document_id", documentID,
		"tables", stats.TablesFound,
		"sov_items", stats.SOVItems,
		"loss_run_claims", stats.LossRunClaims)

	return stats, nil
}
