// Package ingest drives one document through queued -> running -> done|error:
// page extraction, chunking, index build and chunk persistence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"docqa/internal/chunker"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/vectorindex"
)

var (
	// ErrNotQueued means another job owns the document or it was already
	// ingested; the job should be dropped.
	ErrNotQueued = errors.New("document is not queued for ingestion")
	ErrNoPages   = errors.New("document has no pages")
	// ErrClaimFailed means the job could not take the document out of
	// queued and the failure could not be recorded; the job should be
	// redelivered.
	ErrClaimFailed = errors.New("claim document failed")
)

type DocumentStore interface {
	GetByID(ctx context.Context, id uint) (*model.Document, error)
	// TryStart moves the document from queued to running and reports
	// whether this caller won the transition.
	TryStart(ctx context.Context, id uint) (bool, error)
	MarkDone(ctx context.Context, id uint, pageCount int) error
	MarkError(ctx context.Context, id uint, message string) error
	// FailQueued moves a still-queued document to error and reports
	// whether it did.
	FailQueued(ctx context.Context, id uint, message string) (bool, error)
}

type PageStore interface {
	DeleteByDocumentID(ctx context.Context, documentID uint) error
	CreateBatch(ctx context.Context, pages []model.Page) error
}

type ChunkStore interface {
	DeleteByDocumentID(ctx context.Context, documentID uint) error
	CreateBatch(ctx context.Context, chunks []model.Chunk) error
}

// PageSource returns the plain text of every page of the stored original, in
// page order.
type PageSource interface {
	Pages(ctx context.Context, doc *model.Document) ([]string, error)
}

type IndexBuilder interface {
	Build(ctx context.Context, key vectorindex.Key, texts []string) ([]int, error)
}

// Locker guards a document across worker processes. Acquire returns "" when
// the lock is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, documentID uint) (string, error)
	Release(ctx context.Context, documentID uint, token string) error
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Timeout      time.Duration
}

type Runner struct {
	docs   DocumentStore
	pages  PageStore
	chunks ChunkStore
	source PageSource
	index  IndexBuilder
	locker Locker
	opts   Options
}

// NewRunner wires a runner. locker may be nil when only one worker process
// runs.
func NewRunner(docs DocumentStore, pages PageStore, chunks ChunkStore, source PageSource, index IndexBuilder, locker Locker, opts Options) *Runner {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = chunker.DefaultChunkOverlap
	}
	return &Runner{
		docs:   docs,
		pages:  pages,
		chunks: chunks,
		source: source,
		index:  index,
		locker: locker,
		opts:   opts,
	}
}

// Run ingests documentID. It returns ErrNotQueued without touching the
// document when the queued -> running transition is lost, and ErrClaimFailed
// when the claim broke and the document could not be failed either. Any
// other failure is recorded on the document and returned.
func (r *Runner) Run(ctx context.Context, documentID uint) error {
	if r.locker != nil {
		token, err := r.locker.Acquire(ctx, documentID)
		if err != nil {
			return r.claimFailed(ctx, documentID, fmt.Errorf("acquire ingest lock: %w", err))
		}
		if token == "" {
			metrics.IngestJobs.WithLabelValues("skipped").Inc()
			return ErrNotQueued
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), documentID, token); err != nil {
				log.Printf("ingest: document %d: %v", documentID, err)
			}
		}()
	}

	started, err := r.docs.TryStart(ctx, documentID)
	if err != nil {
		return r.claimFailed(ctx, documentID, err)
	}
	if !started {
		metrics.IngestJobs.WithLabelValues("skipped").Inc()
		return ErrNotQueued
	}

	begin := time.Now()
	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	pageCount, chunkCount, err := r.process(runCtx, documentID)
	metrics.IngestDuration.Observe(time.Since(begin).Seconds())
	if err != nil {
		metrics.IngestJobs.WithLabelValues("error").Inc()
		if markErr := r.docs.MarkError(context.WithoutCancel(ctx), documentID, err.Error()); markErr != nil {
			log.Printf("ingest: document %d: record failure: %v", documentID, markErr)
		}
		return fmt.Errorf("ingest document %d failed: %w", documentID, err)
	}

	if err := r.docs.MarkDone(context.WithoutCancel(ctx), documentID, pageCount); err != nil {
		metrics.IngestJobs.WithLabelValues("error").Inc()
		return fmt.Errorf("mark document %d done failed: %w", documentID, err)
	}
	metrics.IngestJobs.WithLabelValues("done").Inc()
	log.Printf("ingest: document %d done: %d pages, %d chunks in %s", documentID, pageCount, chunkCount, time.Since(begin).Round(time.Millisecond))
	return nil
}

// claimFailed handles an error hit before the document left queued. A job
// interrupted by shutdown, or one whose failure cannot be written, asks for
// redelivery. Otherwise the document goes to error so it can be re-ingested.
func (r *Runner) claimFailed(ctx context.Context, documentID uint, cause error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrClaimFailed, cause)
	}
	failed, err := r.docs.FailQueued(context.WithoutCancel(ctx), documentID, "start ingestion failed: "+cause.Error())
	if err != nil {
		log.Printf("ingest: document %d: record claim failure: %v", documentID, err)
		return fmt.Errorf("%w: %w", ErrClaimFailed, cause)
	}
	if !failed {
		// someone else moved it on; nothing left for this job
		metrics.IngestJobs.WithLabelValues("skipped").Inc()
		return fmt.Errorf("%w: %v", ErrNotQueued, cause)
	}
	metrics.IngestJobs.WithLabelValues("error").Inc()
	return fmt.Errorf("ingest document %d failed: %w", documentID, cause)
}

func (r *Runner) process(ctx context.Context, documentID uint) (int, int, error) {
	doc, err := r.docs.GetByID(ctx, documentID)
	if err != nil {
		return 0, 0, fmt.Errorf("load document failed: %w", err)
	}

	// a retry starts over from page extraction
	if err := r.chunks.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return 0, 0, fmt.Errorf("reset chunks failed: %w", err)
	}
	if err := r.pages.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return 0, 0, fmt.Errorf("reset pages failed: %w", err)
	}

	texts, err := r.source.Pages(ctx, doc)
	if err != nil {
		return 0, 0, fmt.Errorf("extract pages failed: %w", err)
	}
	if len(texts) == 0 {
		return 0, 0, ErrNoPages
	}

	pages := make([]model.Page, len(texts))
	for i, text := range texts {
		pages[i] = model.Page{DocumentID: doc.ID, PageNumber: i + 1, Text: text}
	}
	if err := r.pages.CreateBatch(ctx, pages); err != nil {
		return 0, 0, fmt.Errorf("save pages failed: %w", err)
	}

	var chunks []model.Chunk
	for _, page := range pages {
		for _, seg := range chunker.Split(page.Text, page.PageNumber, r.opts.ChunkSize, r.opts.ChunkOverlap) {
			chunks = append(chunks, model.Chunk{
				DocumentID: doc.ID,
				PageID:     page.ID,
				PageNumber: seg.PageNumber,
				Text:       seg.Text,
				CharStart:  seg.CharStart,
				CharEnd:    seg.CharEnd,
			})
		}
	}

	chunkTexts := make([]string, len(chunks))
	for i := range chunks {
		chunkTexts[i] = chunks[i].Text
	}
	key := vectorindex.Key{UserID: doc.UserID, DocumentID: doc.ID}
	ids, err := r.index.Build(ctx, key, chunkTexts)
	if err != nil {
		return 0, 0, fmt.Errorf("build index failed: %w", err)
	}
	if len(ids) != len(chunks) {
		return 0, 0, fmt.Errorf("index returned %d ids for %d chunks", len(ids), len(chunks))
	}
	for i := range chunks {
		chunks[i].VectorID = ids[i]
	}

	if len(chunks) > 0 {
		if err := r.chunks.CreateBatch(ctx, chunks); err != nil {
			return 0, 0, fmt.Errorf("save chunks failed: %w", err)
		}
	}
	return len(pages), len(chunks), nil
}
