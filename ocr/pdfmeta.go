package ocr

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/c360studio/policypipe/document"
)

// ExtractPageTexts pulls plain text per page directly from the PDF without
// the OCR service. This feeds page analysis, which runs before full
// extraction; pages that fail to parse yield empty strings.
func ExtractPageTexts(filePath string) ([]string, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open PDF %s: %w", filePath, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	texts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = strings.TrimSpace(text)
	}
	return texts, nil
}

// EnrichPageMeta runs the secondary PDF pass: page dimensions, rotation,
// and word-level coordinates for citation mapping. Failures are logged and
// skipped; the primary OCR output stands on its own (I: this pass is
// non-fatal).
func EnrichPageMeta(filePath string, pages []document.Page, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		logger.Warn("Secondary PDF pass unavailable", "path", filePath, "error", err)
		return
	}
	defer f.Close()

	numPages := reader.NumPage()
	for i := range pages {
		p := &pages[i]
		if p.PageNumber < 1 || p.PageNumber > numPages {
			continue
		}

		page := reader.Page(p.PageNumber)
		if page.V.IsNull() {
			continue
		}

		if dims, ok := pageDimensions(page); ok {
			// Keep parser-reported dimensions when present; the local
			// pass only fills gaps.
			if p.Dimensions.Width == 0 {
				p.Dimensions = dims
			}
		}

		boxes, err := wordBoxes(page)
		if err != nil {
			logger.Debug("Word box extraction failed",
				"document_id", p.DocumentID,
				"page", p.PageNumber,
				"error", err)
			continue
		}
		p.Metadata.WordBoxes = boxes
	}
}

// pageDimensions reads the MediaBox and Rotate entries.
func pageDimensions(page pdf.Page) (document.PageDimensions, bool) {
	mediaBox := page.V.Key("MediaBox")
	if mediaBox.IsNull() || mediaBox.Len() < 4 {
		return document.PageDimensions{}, false
	}

	x0 := mediaBox.Index(0).Float64()
	y0 := mediaBox.Index(1).Float64()
	x1 := mediaBox.Index(2).Float64()
	y1 := mediaBox.Index(3).Float64()

	dims := document.PageDimensions{
		Width:  x1 - x0,
		Height: y1 - y0,
	}

	if rotate := page.V.Key("Rotate"); !rotate.IsNull() {
		dims.Rotation = int(rotate.Int64())
	}

	return dims, true
}

// wordBoxes extracts word-level coordinates from the page content stream.
func wordBoxes(page pdf.Page) (boxes []document.WordBox, err error) {
	// The pdf library panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream parse panic: %v", r)
		}
	}()

	content := page.Content()
	for _, t := range content.Text {
		word := strings.TrimSpace(t.S)
		if word == "" {
			continue
		}
		boxes = append(boxes, document.WordBox{
			Text: word,
			X:    t.X,
			Y:    t.Y,
			W:    t.W,
			H:    t.FontSize,
		})
	}
	return boxes, nil
}
