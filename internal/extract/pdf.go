// Package extract pulls per-page plain text out of uploaded PDF files.
package extract

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDF extracts page text from PDF files on disk.
type PDF struct{}

// NewPDF creates a PDF extractor.
func NewPDF() *PDF {
	return &PDF{}
}

// Pages returns the plain text of every page in reading order. The slice is
// indexed from zero; page numbers reported to callers are 1-based. Pages the
// parser cannot decode cleanly contribute an empty string rather than failing
// the whole document; an unreadable file returns an error.
func (e *PDF) Pages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// Malformed content streams on one page should not discard the
			// rest of the document.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
