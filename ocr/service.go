// Package ocr extracts page text, markdown, and structural tables from PDF
// documents via an HTTP structural-parser service, plus a secondary local
// pass for page geometry and word coordinates.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
)

// maxParseResponseSize caps the parser response body.
const maxParseResponseSize = 256 * 1024 * 1024 // 256MB

// Service extracts pages from a document file. When pagesToProcess is
// non-empty, only those pages are returned; the parser still sees the whole
// file because structural parsers cannot skip pages internally.
type Service interface {
	ExtractPages(ctx context.Context, filePath, documentID string, pagesToProcess []int) ([]document.Page, error)
}

// HTTPService talks to a structural PDF parser over HTTP.
type HTTPService struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPOption configures an HTTPService.
type HTTPOption func(*HTTPService)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPService) {
		s.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(s *HTTPService) {
		s.logger = logger
	}
}

// NewHTTPService creates the structural-parser client.
func NewHTTPService(cfg config.OCRConfig, opts ...HTTPOption) *HTTPService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}

	s := &HTTPService{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// parsedPage is one page in the parser's response.
type parsedPage struct {
	PageNumber int                  `json:"page_number"`
	Text       string               `json:"text"`
	Markdown   string               `json:"markdown"`
	Width      float64              `json:"width"`
	Height     float64              `json:"height"`
	Rotation   int                  `json:"rotation"`
	Tables     []parsedTable        `json:"tables,omitempty"`
}

type parsedTable struct {
	Cells       []document.TableCell `json:"cells"`
	BBox        *document.BBox       `json:"bbox,omitempty"`
	HeaderRows  int                  `json:"header_rows"`
	NumRows     int                  `json:"num_rows"`
	NumCols     int                  `json:"num_cols"`
	Confidence  float64              `json:"confidence"`
	RawMarkdown string               `json:"raw_markdown,omitempty"`
}

type parseResponse struct {
	Pages []parsedPage `json:"pages"`
}

// ExtractPages parses the document and returns the requested pages with
// structural tables embedded in page metadata.
func (s *HTTPService) ExtractPages(ctx context.Context, filePath, documentID string, pagesToProcess []int) ([]document.Page, error) {
	resp, err := s.parse(ctx, filePath)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int]bool, len(pagesToProcess))
	for _, p := range pagesToProcess {
		wanted[p] = true
	}

	now := time.Now()
	var pages []document.Page
	for _, pp := range resp.Pages {
		if len(wanted) > 0 && !wanted[pp.PageNumber] {
			continue
		}

		page := document.Page{
			DocumentID: documentID,
			PageNumber: pp.PageNumber,
			Text:       pp.Text,
			Markdown:   pp.Markdown,
			Dimensions: document.PageDimensions{
				Width:    pp.Width,
				Height:   pp.Height,
				Rotation: pp.Rotation,
			},
			Metadata: document.PageMetadata{
				HasTables: len(pp.Tables) > 0,
				Source:    "structural-parser",
			},
			CreatedAt: now,
		}

		for i, pt := range pp.Tables {
			table := document.TableJSON{
				TableID:     document.DeriveTableID(documentID, pp.PageNumber, i),
				DocumentID:  documentID,
				PageNumber:  pp.PageNumber,
				TableIndex:  i,
				BBox:        pt.BBox,
				Cells:       pt.Cells,
				HeaderRows:  pt.HeaderRows,
				NumRows:     pt.NumRows,
				NumCols:     pt.NumCols,
				Source:      document.TableSourceStructural,
				Confidence:  pt.Confidence,
				RawMarkdown: pt.RawMarkdown,
				CreatedAt:   now,
			}
			if err := table.Validate(); err != nil {
				s.logger.Warn("Dropping malformed structural table",
					"document_id", documentID,
					"page", pp.PageNumber,
					"table_index", i,
					"error", err)
				continue
			}
			page.Metadata.StructuralTables = append(page.Metadata.StructuralTables, table)
		}

		if err := page.Validate(); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })

	s.logger.Info("OCR extraction complete",
		"document_id", documentID,
		"pages_returned", len(pages),
		"pages_requested", len(pagesToProcess))

	return pages, nil
}

// parse uploads the file to the structural parser and decodes the response.
func (s *HTTPService) parse(ctx context.Context, filePath string) (*parseResponse, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("create multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart: %w", err)
	}

	url := s.endpoint + "/parse"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create parse request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call structural parser: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxParseResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read parser response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		detail := string(respBody)
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
		return nil, fmt.Errorf("structural parser returned status %d: %s", httpResp.StatusCode, detail)
	}

	var resp parseResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode parser response: %w", err)
	}
	return &resp, nil
}
