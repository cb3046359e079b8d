package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyFile = errors.New("file is empty")

// ExtractPages reads the entire content of r and returns the plain text of
// each PDF page in order. Pages without extractable text (scans, figures)
// yield an empty string so page numbers stay aligned.
func ExtractPages(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrEmptyFile
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	pages := make([]string, 0, pdfReader.NumPage())
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// SplitTextPages treats form feeds as page breaks in a plain-text upload.
// A trailing form feed does not start an extra page.
func SplitTextPages(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrEmptyFile
	}
	text := strings.TrimSuffix(string(b), "\f")
	return strings.Split(text, "\f"), nil
}
