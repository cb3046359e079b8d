package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"docqa/internal/ingest"
	"docqa/internal/model"
	"docqa/internal/vectorindex"
)

type DocumentRepo interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Document, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Document, error)
	MarkError(ctx context.Context, id uint, message string) error
	ResetForRetry(ctx context.Context, id, userID uint) (bool, error)
	Delete(ctx context.Context, id uint) error
}

type ObjectStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Delete(ctx context.Context, key string) error
}

type IngestPublisher interface {
	PublishIngest(ctx context.Context, documentID, userID uint) (string, error)
}

type IndexDeleter interface {
	Delete(key vectorindex.Key) error
}

type DocumentService struct {
	docs      DocumentRepo
	objects   ObjectStore
	publisher IngestPublisher
	indexes   IndexDeleter
	maxBytes  int64
}

func NewDocumentService(docs DocumentRepo, objects ObjectStore, publisher IngestPublisher, indexes IndexDeleter, maxBytes int64) *DocumentService {
	return &DocumentService{
		docs:      docs,
		objects:   objects,
		publisher: publisher,
		indexes:   indexes,
		maxBytes:  maxBytes,
	}
}

type UploadInput struct {
	UserID      uint
	Title       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the original, registers the document as queued and
// schedules its ingestion. If scheduling fails the document is left in the
// error state so it can be re-ingested.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	filename := path.Base(strings.TrimSpace(input.Filename))
	if input.UserID == 0 || filename == "" || filename == "." || input.Body == nil {
		return nil, ErrInvalidInput
	}
	contentType := ingest.ContentTypeFor(filename, input.ContentType)
	if contentType == "" {
		return nil, ErrUnsupportedType
	}
	if s.maxBytes > 0 && input.Size > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(filename, path.Ext(filename))
	}

	key := fmt.Sprintf("%d/%s%s", input.UserID, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	body := input.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(body, s.maxBytes+1)
	}
	written, err := s.objects.Save(ctx, key, body)
	if err != nil {
		return nil, err
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		s.deleteObject(ctx, key)
		return nil, ErrFileTooLarge
	}

	doc := &model.Document{
		UserID:      input.UserID,
		Title:       title,
		Filename:    filename,
		ContentType: contentType,
		StorageKey:  key,
		Status:      model.DocumentStatusQueued,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.deleteObject(ctx, key)
		return nil, err
	}

	if err := s.enqueue(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByUserID(ctx, userID)
}

// Reingest resets a done or failed document to queued and schedules a fresh
// run, which rebuilds pages, chunks and the index from scratch.
func (s *DocumentService) Reingest(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	reset, err := s.docs.ResetForRetry(ctx, doc.ID, userID)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, ErrDocumentBusy
	}
	doc.Status = model.DocumentStatusQueued
	doc.ErrorMessage = nil
	doc.PageCount = nil

	if err := s.enqueue(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Delete removes the document rows, its vector index and its original. A
// document that is being ingested cannot be deleted.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID uint) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if doc.Status == model.DocumentStatusRunning {
		return ErrDocumentBusy
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.indexes.Delete(vectorindex.Key{UserID: doc.UserID, DocumentID: doc.ID}); err != nil {
		log.Printf("document %d: delete index: %v", doc.ID, err)
	}
	s.deleteObject(ctx, doc.StorageKey)
	return nil
}

func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) error {
	jobID, err := s.publisher.PublishIngest(ctx, doc.ID, doc.UserID)
	if err == nil {
		log.Printf("document %d: ingest job %s enqueued", doc.ID, jobID)
		return nil
	}

	message := "schedule ingestion failed: " + err.Error()
	if markErr := s.docs.MarkError(context.WithoutCancel(ctx), doc.ID, message); markErr != nil {
		log.Printf("document %d: %v", doc.ID, markErr)
	} else {
		doc.Status = model.DocumentStatusError
		doc.ErrorMessage = &message
	}
	return errors.Join(ErrIngestEnqueue, err)
}

func (s *DocumentService) deleteObject(ctx context.Context, key string) {
	if err := s.objects.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Printf("delete object %s: %v", key, err)
	}
}
