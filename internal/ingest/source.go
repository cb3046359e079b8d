package ingest

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"docqa/internal/model"
	"docqa/internal/pkg/pdfextract"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
)

type Originals interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// StoredPages reads a document's original from storage and splits it into
// pages according to its content type.
type StoredPages struct {
	originals Originals
}

func NewStoredPages(originals Originals) *StoredPages {
	return &StoredPages{originals: originals}
}

func (s *StoredPages) Pages(ctx context.Context, doc *model.Document) ([]string, error) {
	rc, err := s.originals.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	switch ContentTypeFor(doc.Filename, doc.ContentType) {
	case ContentTypePDF:
		return pdfextract.ExtractPages(rc)
	case ContentTypeText:
		return pdfextract.SplitTextPages(rc)
	default:
		return nil, fmt.Errorf("unsupported content type %q", doc.ContentType)
	}
}

// ContentTypeFor normalizes an upload's declared type, falling back to the
// file extension. It returns "" for unsupported files.
func ContentTypeFor(filename, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	switch declared {
	case ContentTypePDF, ContentTypeText:
		return declared
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return ContentTypePDF
	case ".txt", ".text":
		return ContentTypeText
	}
	return ""
}
