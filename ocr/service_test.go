package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
)

func fakeParser(t *testing.T, resp parseResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/parse", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)

		json.NewEncoder(w).Encode(resp)
	}))
}

func tempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644))
	return path
}

func TestExtractPages_FiltersToManifest(t *testing.T) {
	srv := fakeParser(t, parseResponse{Pages: []parsedPage{
		{PageNumber: 1, Text: "declarations", Width: 612, Height: 792},
		{PageNumber: 2, Text: "boilerplate"},
		{PageNumber: 3, Text: "exclusions"},
		{PageNumber: 4, Text: "duplicate"},
		{PageNumber: 5, Text: "endorsement"},
	}})
	defer srv.Close()

	svc := NewHTTPService(config.OCRConfig{Endpoint: srv.URL, Timeout: time.Minute})

	pages, err := svc.ExtractPages(context.Background(), tempPDF(t), "doc:1", []int{1, 3, 5})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 3, pages[1].PageNumber)
	assert.Equal(t, 5, pages[2].PageNumber)
	assert.Equal(t, 612.0, pages[0].Dimensions.Width)
	assert.Equal(t, "structural-parser", pages[0].Metadata.Source)
}

func TestExtractPages_AllPagesWhenNoFilter(t *testing.T) {
	srv := fakeParser(t, parseResponse{Pages: []parsedPage{
		{PageNumber: 1, Text: "one"},
		{PageNumber: 2, Text: "two"},
	}})
	defer srv.Close()

	svc := NewHTTPService(config.OCRConfig{Endpoint: srv.URL})

	pages, err := svc.ExtractPages(context.Background(), tempPDF(t), "doc:1", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestExtractPages_StructuralTables(t *testing.T) {
	srv := fakeParser(t, parseResponse{Pages: []parsedPage{
		{
			PageNumber: 3,
			Text:       "statement of values",
			Tables: []parsedTable{
				{
					Cells: []document.TableCell{
						{Row: 0, Col: 0, Text: "Loc", IsHeader: true},
						{Row: 0, Col: 1, Text: "TIV", IsHeader: true},
						{Row: 1, Col: 0, Text: "1"},
						{Row: 1, Col: 1, Text: "500000"},
					},
					HeaderRows: 1,
					NumRows:    2,
					NumCols:    2,
					Confidence: 0.92,
				},
				{
					// Malformed: cell outside the declared grid. Must be
					// dropped, not fail the page.
					Cells:   []document.TableCell{{Row: 5, Col: 0, Text: "x"}},
					NumRows: 1,
					NumCols: 1,
				},
			},
		},
	}})
	defer srv.Close()

	svc := NewHTTPService(config.OCRConfig{Endpoint: srv.URL})

	pages, err := svc.ExtractPages(context.Background(), tempPDF(t), "doc:1", []int{3})
	require.NoError(t, err)
	require.Len(t, pages, 1)

	meta := pages[0].Metadata
	assert.True(t, meta.HasTables)
	require.Len(t, meta.StructuralTables, 1)

	table := meta.StructuralTables[0]
	assert.Equal(t, document.DeriveTableID("doc:1", 3, 0), table.TableID)
	assert.Equal(t, document.TableSourceStructural, table.Source)
	assert.Equal(t, 2, table.NumRows)
}

func TestExtractPages_ParserError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("parser crashed"))
	}))
	defer srv.Close()

	svc := NewHTTPService(config.OCRConfig{Endpoint: srv.URL})

	_, err := svc.ExtractPages(context.Background(), tempPDF(t), "doc:1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestEnrichPageMeta_NonFatalOnBadFile(t *testing.T) {
	pages := []document.Page{{DocumentID: "doc:1", PageNumber: 1, Text: "hello"}}

	// Not a real PDF; the secondary pass must not error or mutate pages.
	EnrichPageMeta(tempPDF(t), pages, nil)

	assert.Equal(t, "hello", pages[0].Text)
	assert.Empty(t, pages[0].Metadata.WordBoxes)
}
