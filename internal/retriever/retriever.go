// Package retriever turns a question into ranked evidence chunks by searching
// a document's vector index and resolving the hits back to stored chunks.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/vectorindex"
)

// ErrNoEvidence means nothing in the document could be matched to the
// question, either because there is no index yet or no hit resolved.
var ErrNoEvidence = errors.New("no evidence found")

type Searcher interface {
	Search(ctx context.Context, key vectorindex.Key, query string, topK int) ([]vectorindex.Hit, error)
}

type ChunkLookup interface {
	GetByVectorIDs(ctx context.Context, documentID uint, vectorIDs []int) ([]model.Chunk, error)
}

// Evidence is a resolved chunk together with its retrieval score.
type Evidence struct {
	ChunkID    uint
	VectorID   int
	PageNumber int
	Text       string
	CharStart  int
	CharEnd    int
	Score      float32
}

type Retriever struct {
	searcher Searcher
	chunks   ChunkLookup
}

func New(searcher Searcher, chunks ChunkLookup) *Retriever {
	return &Retriever{searcher: searcher, chunks: chunks}
}

// Retrieve returns evidence in rank order. Hits whose vector id has no chunk
// row are skipped.
func (r *Retriever) Retrieve(ctx context.Context, key vectorindex.Key, question string, topK int) ([]Evidence, error) {
	started := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(started).Seconds())
	}()

	hits, err := r.searcher.Search(ctx, key, question, topK)
	if err != nil {
		return nil, fmt.Errorf("search index failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrNoEvidence
	}

	ids := make([]int, len(hits))
	for i, hit := range hits {
		ids[i] = hit.VectorID
	}
	rows, err := r.chunks.GetByVectorIDs(ctx, key.DocumentID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks failed: %w", err)
	}
	byVector := make(map[int]model.Chunk, len(rows))
	for _, row := range rows {
		byVector[row.VectorID] = row
	}

	out := make([]Evidence, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := byVector[hit.VectorID]
		if !ok {
			continue
		}
		out = append(out, Evidence{
			ChunkID:    chunk.ID,
			VectorID:   hit.VectorID,
			PageNumber: chunk.PageNumber,
			Text:       chunk.Text,
			CharStart:  chunk.CharStart,
			CharEnd:    chunk.CharEnd,
			Score:      hit.Score,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoEvidence
	}
	return out, nil
}
