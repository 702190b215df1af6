package tables

import (
	"log/slog"

	"github.com/c360studio/policypipe/document"
)

// ExtractTables collects tables from extracted pages. Structural tables from
// the parser are authoritative; markdown recovery only runs for pages where
// the parser found nothing but the markdown still shows pipe-delimited rows.
func ExtractTables(pages []document.Page, logger *slog.Logger) []document.TableJSON {
	if logger == nil {
		logger = slog.Default()
	}

	var tables []document.TableJSON
	for _, page := range pages {
		if len(page.Metadata.StructuralTables) > 0 {
			tables = append(tables, page.Metadata.StructuralTables...)
			continue
		}

		recovered := ParseMarkdownTables(page.DocumentID, page.PageNumber, page.Markdown, 0)
		if len(recovered) > 0 {
			logger.Debug("Recovered tables from markdown",
				"document_id", page.DocumentID,
				"page", page.PageNumber,
				"count", len(recovered))
			tables = append(tables, recovered...)
		}
	}
	return tables
}

// headerTexts returns the header cell texts of a table. Tables without
// marked headers fall back to the first row, which is what OCR output
// usually means anyway.
func headerTexts(t *document.TableJSON) []string {
	var headers []string
	for _, c := range t.Cells {
		if c.IsHeader {
			headers = append(headers, c.Text)
		}
	}
	if len(headers) > 0 {
		return headers
	}
	for _, c := range t.Cells {
		if c.Row == 0 {
			headers = append(headers, c.Text)
		}
	}
	return headers
}

// bodyRows returns the non-header rows as a dense grid keyed by column.
func bodyRows(t *document.TableJSON) []map[int]string {
	headerRows := t.HeaderRows
	if headerRows == 0 && len(headerTexts(t)) > 0 {
		headerRows = 1
	}

	rows := make(map[int]map[int]string)
	for _, c := range t.Cells {
		if c.Row < headerRows {
			continue
		}
		if rows[c.Row] == nil {
			rows[c.Row] = make(map[int]string)
		}
		rows[c.Row][c.Col] = c.Text
	}

	out := make([]map[int]string, 0, len(rows))
	for r := headerRows; r < t.NumRows; r++ {
		if row, ok := rows[r]; ok {
			out = append(out, row)
		}
	}
	return out
}
