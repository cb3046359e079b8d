package cache

import (
	"context"
	"log"

	"docqa/internal/metrics"
)

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	GetMany(ctx context.Context, texts []string) ([][]float32, error)
	SetMany(ctx context.Context, texts []string, vectors [][]float32) error
}

// CachedEmbedder serves repeated texts (mostly questions) from a VectorStore
// and only sends misses to the wrapped embedder. Cache failures degrade to
// calling the embedder directly.
type CachedEmbedder struct {
	next  Embedder
	store VectorStore
}

func NewCachedEmbedder(next Embedder, store VectorStore) *CachedEmbedder {
	return &CachedEmbedder{next: next, store: store}
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	cached, err := e.store.GetMany(ctx, texts)
	if err != nil || len(cached) != len(texts) {
		if err != nil {
			log.Printf("embedding cache lookup failed: %v", err)
		}
		metrics.EmbeddingCacheLookups.WithLabelValues("error").Inc()
		return e.next.EmbedBatch(ctx, texts)
	}

	var (
		missTexts []string
		missIdx   []int
	)
	for i, vec := range cached {
		if vec == nil {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
		}
	}
	metrics.EmbeddingCacheLookups.WithLabelValues("hit").Add(float64(len(texts) - len(missTexts)))
	metrics.EmbeddingCacheLookups.WithLabelValues("miss").Add(float64(len(missTexts)))
	if len(missTexts) == 0 {
		return cached, nil
	}

	fresh, err := e.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j < len(fresh) {
			cached[i] = fresh[j]
		}
	}
	if len(fresh) == len(missTexts) {
		if err := e.store.SetMany(ctx, missTexts, fresh); err != nil {
			log.Printf("embedding cache store failed: %v", err)
		}
	}
	return cached, nil
}
