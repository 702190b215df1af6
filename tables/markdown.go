// Package tables turns OCR output into classified, normalized table data:
// structural tables preferred, markdown tables as fallback, a rules scorer
// for table type, and row normalisation into SOV items and loss-run claims.
package tables

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360studio/policypipe/document"
)

var (
	tableLinePattern     = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	separatorLinePattern = regexp.MustCompile(`^\s*\|[\s:\-|]+\|\s*$`)
)

// ParseMarkdownTables recovers tables from markdown text. Used when the
// structural parser produced no TableJSON for a page that has tables.
func ParseMarkdownTables(documentID string, pageNumber int, markdown string, startIndex int) []document.TableJSON {
	lines := strings.Split(markdown, "\n")

	var tables []document.TableJSON
	var block []string

	flush := func() {
		if len(block) >= 2 {
			if t, ok := tableFromBlock(documentID, pageNumber, startIndex+len(tables), block); ok {
				tables = append(tables, t)
			}
		}
		block = nil
	}

	for _, line := range lines {
		if tableLinePattern.MatchString(line) {
			block = append(block, line)
			continue
		}
		flush()
	}
	flush()

	return tables
}

// tableFromBlock converts a run of pipe-delimited lines into a TableJSON.
func tableFromBlock(documentID string, pageNumber, index int, lines []string) (document.TableJSON, bool) {
	var rows [][]string
	headerRows := 0

	for _, line := range lines {
		if separatorLinePattern.MatchString(line) {
			// The separator marks everything above it as header.
			if headerRows == 0 {
				headerRows = len(rows)
			}
			continue
		}
		cells := splitMarkdownRow(line)
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, cells)
	}

	if len(rows) == 0 {
		return document.TableJSON{}, false
	}

	numCols := 0
	for _, r := range rows {
		if len(r) > numCols {
			numCols = len(r)
		}
	}

	table := document.TableJSON{
		TableID:     document.DeriveTableID(documentID, pageNumber, index),
		DocumentID:  documentID,
		PageNumber:  pageNumber,
		TableIndex:  index,
		HeaderRows:  headerRows,
		NumRows:     len(rows),
		NumCols:     numCols,
		Source:      document.TableSourceMarkdown,
		Confidence:  0.6, // markdown recovery is inherently lossy
		RawMarkdown: strings.Join(lines, "\n"),
		CreatedAt:   time.Now(),
	}

	for r, row := range rows {
		for c, text := range row {
			table.Cells = append(table.Cells, document.TableCell{
				Row:      r,
				Col:      c,
				Text:     text,
				IsHeader: r < headerRows,
			})
		}
	}

	return table, true
}

func splitMarkdownRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")

	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}
