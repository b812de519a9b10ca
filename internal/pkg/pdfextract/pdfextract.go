package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrMalformed = errors.New("malformed pdf")

// Document is the text layer of a PDF, one entry per page. Pages without text are kept
// as empty strings so indexes line up with page numbers.
type Document struct {
	Pages []string
}

// Text joins the pages that carry text with a blank line between them.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Extract reads at most maxPages pages from data (0 reads all of them). The pdf
// package panics on some broken files, those come back as ErrMalformed.
func Extract(data []byte, maxPages int) (doc *Document, err error) {
	if len(data) == 0 {
		return &Document{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	total := reader.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	// Fonts are shared across pages; later pages often only reference them.
	fonts := make(map[string]*pdf.Font)
	doc = &Document{Pages: make([]string, 0, total)}
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, "")
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("read page %d failed: %w", i, err)
		}
		doc.Pages = append(doc.Pages, normalize(text))
	}
	return doc, nil
}

// ExtractText returns the text of every page. A PDF with no text layer yields "".
func ExtractText(data []byte) (string, error) {
	doc, err := Extract(data, 0)
	if err != nil {
		return "", err
	}
	return doc.Text(), nil
}

// normalize drops the blank lines and padding left by text-object breaks.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
