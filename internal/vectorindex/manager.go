// Package vectorindex owns one HNSW index per document: it builds the index
// from chunk texts, persists it next to other documents' indexes, keeps
// loaded indexes resident, and answers top-k similarity queries.
//
// Vectors are L2-normalized at build and at query time and the graph uses
// cosine distance, so the reported score is the cosine similarity.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"golang.org/x/sync/singleflight"

	"docqa/internal/metrics"
)

const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 100
	defaultBatchSize      = 64
)

var (
	ErrEmbeddingMismatch = errors.New("embedding count does not match input")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrZeroVector        = errors.New("embedding has zero norm")
)

// Embedder maps texts to fixed-length vectors, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one search result, best first.
type Hit struct {
	VectorID int
	Score    float32
}

type Options struct {
	Dir            string
	M              int
	EfConstruction int
	EfSearch       int
	BatchSize      int
}

type entry struct {
	graph *hnsw.Graph[uint32]
	dims  int
}

type Manager struct {
	embedder Embedder
	opts     Options

	mu      sync.RWMutex
	entries map[Key]*entry
	gens    map[Key]uint64
	loads   singleflight.Group
}

func NewManager(embedder Embedder, opts Options) *Manager {
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfConstruction <= 0 {
		opts.EfConstruction = DefaultEfConstruction
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Manager{
		embedder: embedder,
		opts:     opts,
		entries:  make(map[Key]*entry),
		gens:     make(map[Key]uint64),
	}
}

// Build embeds texts, builds a fresh index and replaces any previous one for
// key. The returned vector ids are 0..len(texts)-1 in input order. On error
// the previously persisted index, if any, is left untouched.
func (m *Manager) Build(ctx context.Context, key Key, texts []string) ([]int, error) {
	if len(texts) == 0 {
		if err := m.Delete(key); err != nil {
			return nil, err
		}
		return []int{}, nil
	}
	started := time.Now()

	vectors, err := m.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}
	dims := len(vectors[0])

	g := newGraph(m.opts.M, m.opts.EfConstruction)
	nodes := make([]hnsw.Node[uint32], len(vectors))
	for i, vec := range vectors {
		nodes[i] = hnsw.MakeNode(uint32(i), vec)
	}
	g.Add(nodes...)
	g.EfSearch = m.opts.EfSearch

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := encodeGraph(g, dims, len(vectors))
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(key.path(m.opts.Dir), raw); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.gens[key]++
	m.entries[key] = &entry{graph: g, dims: dims}
	metrics.CachedIndexes.Set(float64(len(m.entries)))
	m.mu.Unlock()

	metrics.IndexBuildDuration.Observe(time.Since(started).Seconds())
	log.Printf("vectorindex: built %s with %d vectors (dims=%d) in %s", key, len(vectors), dims, time.Since(started).Round(time.Millisecond))

	ids := make([]int, len(texts))
	for i := range ids {
		ids[i] = i
	}
	return ids, nil
}

// Search returns up to topK hits for query. A document without an index
// yields an empty result and no error.
func (m *Manager) Search(ctx context.Context, key Key, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	e, err := m.load(key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}

	vectors, err := m.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, ErrEmbeddingMismatch
	}
	q, err := normalize(vectors[0])
	if err != nil {
		return nil, err
	}
	if len(q) != e.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(q), e.dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodes := e.graph.Search(q, topK)
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, Hit{VectorID: int(node.Key), Score: dot(q, node.Value)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Delete drops the cached index and removes its file. Deleting an index that
// does not exist is not an error.
func (m *Manager) Delete(key Key) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.gens[key]++
	metrics.CachedIndexes.Set(float64(len(m.entries)))
	m.mu.Unlock()

	if err := os.Remove(key.path(m.opts.Dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove index file failed: %w", err)
	}
	_ = os.Remove(key.dir(m.opts.Dir))
	return nil
}

// Cached reports whether key's index is resident in memory.
func (m *Manager) Cached(key Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok
}

// CachedCount is the number of resident indexes.
func (m *Manager) CachedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close evicts every cached index. Files stay on disk.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		m.gens[key]++
	}
	m.entries = make(map[Key]*entry)
	metrics.CachedIndexes.Set(0)
	return nil
}

func (m *Manager) load(key Key) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	gen := m.gens[key]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := m.loads.Do(key.String(), func() (interface{}, error) {
		raw, err := os.ReadFile(key.path(m.opts.Dir))
		if errors.Is(err, os.ErrNotExist) {
			return (*entry)(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read index file failed: %w", err)
		}
		g, h, err := decodeGraph(raw, m.opts.EfSearch)
		if err != nil {
			return nil, err
		}
		return &entry{graph: g, dims: int(h.Dims)}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load index %s failed: %w", key, err)
	}
	loaded := v.(*entry)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[key] != gen {
		// rebuilt or deleted while loading; whatever is cached now wins
		return m.entries[key], nil
	}
	if loaded == nil {
		return nil, nil
	}
	if current, ok := m.entries[key]; ok {
		return current, nil
	}
	m.entries[key] = loaded
	metrics.CachedIndexes.Set(float64(len(m.entries)))
	return loaded, nil
}

func (m *Manager) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += m.opts.BatchSize {
		end := start + m.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := m.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d failed: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMismatch, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	dims := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) != dims || dims == 0 {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(vec), dims)
		}
		normalized, err := normalize(vec)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		vectors[i] = normalized
	}
	return vectors, nil
}

func normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
