package qa

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/ai"
	"docqa/internal/evidence"
	"docqa/internal/model"
	"docqa/internal/retriever"
	"docqa/internal/vectorindex"
)

type fakeRetriever struct {
	evidence []retriever.Evidence
	err      error
}

func (f fakeRetriever) Retrieve(context.Context, vectorindex.Key, string, int) ([]retriever.Evidence, error) {
	return f.evidence, f.err
}

type fakeGenerator struct {
	tokens []string
	err    error
	block  bool
	calls  int
}

func (g *fakeGenerator) StreamComplete(ctx context.Context, _ []ai.ChatMessage, onChunk func(string) error) (string, error) {
	g.calls++
	var full strings.Builder
	for _, tok := range g.tokens {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		full.WriteString(tok)
		if err := onChunk(tok); err != nil {
			return "", err
		}
	}
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if g.err != nil {
		return "", g.err
	}
	return full.String(), nil
}

type fakeStore struct {
	err       error
	calls     int
	answer    string
	citations []model.Citation
}

func (s *fakeStore) SaveAnswer(_ context.Context, _ uint, _ string, answer string, citations []model.Citation) (uint, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	s.answer = answer
	s.citations = citations
	return 42, nil
}

type recorder struct {
	events []Event
	failAt int
	writes int
}

func (r *recorder) sink(ev Event) error {
	r.writes++
	if r.failAt > 0 && r.writes >= r.failAt {
		return errors.New("broken pipe")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var (
	testKey      = vectorindex.Key{UserID: 1, DocumentID: 2}
	testEvidence = []retriever.Evidence{
		{ChunkID: 1, PageNumber: 12, Text: "Stress is force per unit area.", CharStart: 0, CharEnd: 30, Score: 0.9},
		{ChunkID: 2, PageNumber: 3, Text: "Density is mass per volume.", CharStart: 10, CharEnd: 37, Score: 0.7},
	}
)

func newTestStreamer(gen *fakeGenerator, store *fakeStore, r fakeRetriever) *Streamer {
	return NewStreamer(r, gen, store, Options{
		RetrievalTimeout: time.Second,
		TokenTimeout:     time.Second,
		GenerateTimeout:  5 * time.Second,
	})
}

func TestAsk_StreamsTokensThenCitationsThenDone(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Stress is force over area ", "[p. 12]. ", "Density matters [p. 3]. ", "Also [p. 12] and [p. 99]."}}
	store := &fakeStore{}
	rec := &recorder{}

	err := newTestStreamer(gen, store, fakeRetriever{evidence: testEvidence}).
		Ask(context.Background(), Request{Key: testKey, ChatID: 5, Question: "  what is stress? "}, rec.sink)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventToken, EventToken, EventToken, EventToken, EventCitation, EventCitation, EventDone}, rec.types())
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, uint(42), last.MessageID)

	var streamed strings.Builder
	for _, ev := range rec.events {
		switch ev.Type {
		case EventToken:
			streamed.WriteString(ev.Text)
		case EventCitation:
			assert.Contains(t, streamed.String(), "[p. "+itoa(ev.PageNumber)+"]")
		}
	}
	assert.Equal(t, 12, rec.events[4].PageNumber)
	assert.Equal(t, 3, rec.events[5].PageNumber)

	assert.Equal(t, streamed.String(), store.answer)
	require.Len(t, store.citations, 2)
	assert.Equal(t, 10, *store.citations[1].CharStart)
}

func TestAsk_CitesOnlyPagesInTheEvidencePack(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Stress [p. 12]. ", "Density [p. 3]."}}
	store := &fakeStore{}
	rec := &recorder{}
	s := NewStreamer(fakeRetriever{evidence: testEvidence}, gen, store, Options{
		RetrievalTimeout: time.Second,
		TokenTimeout:     time.Second,
		GenerateTimeout:  5 * time.Second,
		Evidence:         evidence.Options{MaxChunks: 1},
	})

	require.NoError(t, s.Ask(context.Background(), Request{Key: testKey, ChatID: 5, Question: "stress?"}, rec.sink))

	var pages []int
	for _, ev := range rec.events {
		if ev.Type == EventCitation {
			pages = append(pages, ev.PageNumber)
		}
	}
	assert.Equal(t, []int{12}, pages, "page 3 was retrieved but not in the pack")
	require.Len(t, store.citations, 1)
	assert.Equal(t, 12, store.citations[0].PageNumber)
}

func TestAsk_NoEvidenceIsSingleTerminalError(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"x"}}
	store := &fakeStore{}
	rec := &recorder{}

	err := newTestStreamer(gen, store, fakeRetriever{err: retriever.ErrNoEvidence}).
		Ask(context.Background(), Request{Key: testKey, ChatID: 5, Question: "q"}, rec.sink)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CodeNoEvidence, failure.Code)
	assert.Equal(t, StateRetrieving, failure.State)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventError, rec.events[0].Type)
	assert.Equal(t, CodeNoEvidence, rec.events[0].Code)
	assert.Zero(t, gen.calls)
	assert.Zero(t, store.calls)
}

func TestAsk_RetrievalFaultIsUpstreamFailure(t *testing.T) {
	rec := &recorder{}
	err := newTestStreamer(&fakeGenerator{}, &fakeStore{}, fakeRetriever{err: errors.New("embedder timeout")}).
		Ask(context.Background(), Request{Key: testKey, Question: "q"}, rec.sink)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CodeUpstreamFailure, failure.Code)
	assert.Equal(t, []EventType{EventError}, rec.types())
}

func TestAsk_GenerationFailureMidStream(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Partial [p. 12]"}, err: errors.New("connection reset")}
	store := &fakeStore{}
	rec := &recorder{}

	err := newTestStreamer(gen, store, fakeRetriever{evidence: testEvidence}).
		Ask(context.Background(), Request{Key: testKey, Question: "q"}, rec.sink)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CodeUpstreamFailure, failure.Code)
	assert.Equal(t, StateGenerating, failure.State)
	assert.Equal(t, []EventType{EventToken, EventError}, rec.types())
	assert.Zero(t, store.calls)
}

func TestAsk_PersistenceFailureAfterDeliveredAnswer(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Answer [p. 3]."}}
	store := &fakeStore{err: errors.New("deadlock")}
	rec := &recorder{}

	err := newTestStreamer(gen, store, fakeRetriever{evidence: testEvidence}).
		Ask(context.Background(), Request{Key: testKey, Question: "q"}, rec.sink)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CodePersistenceFailed, failure.Code)
	assert.Equal(t, []EventType{EventToken, EventCitation, EventError}, rec.types())
	assert.Equal(t, CodePersistenceFailed, rec.events[2].Code)
	for _, ev := range rec.events {
		assert.NotEqual(t, EventDone, ev.Type)
	}
}

func TestAsk_ClientDisconnectAbandonsWithoutPersisting(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"one ", "two ", "three [p. 12]"}}
	store := &fakeStore{}
	rec := &recorder{failAt: 2}

	err := newTestStreamer(gen, store, fakeRetriever{evidence: testEvidence}).
		Ask(context.Background(), Request{Key: testKey, Question: "q"}, rec.sink)

	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, []EventType{EventToken}, rec.types())
	assert.Equal(t, 2, rec.writes, "no writes after the sink failed")
	assert.Zero(t, store.calls)
}

func TestAsk_CanceledContextAbandons(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{tokens: []string{"first"}, block: true}
	store := &fakeStore{}
	rec := &recorder{}

	time.AfterFunc(20*time.Millisecond, cancel)
	err := newTestStreamer(gen, store, fakeRetriever{evidence: testEvidence}).
		Ask(ctx, Request{Key: testKey, Question: "q"}, rec.sink)

	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, []EventType{EventToken}, rec.types())
	assert.Zero(t, store.calls)
}

func TestAsk_TokenIdleTimeout(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"first"}, block: true}
	rec := &recorder{}
	s := NewStreamer(fakeRetriever{evidence: testEvidence}, gen, &fakeStore{}, Options{
		TokenTimeout:    20 * time.Millisecond,
		GenerateTimeout: 5 * time.Second,
	})

	err := s.Ask(context.Background(), Request{Key: testKey, Question: "q"}, rec.sink)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CodeUpstreamFailure, failure.Code)
	assert.ErrorIs(t, err, errTokenTimeout)
	assert.Equal(t, []EventType{EventToken, EventError}, rec.types())
}

func TestAsk_OverallGenerationTimeout(t *testing.T) {
	gen := &fakeGenerator{block: true}
	rec := &recorder{}
	s := NewStreamer(fakeRetriever{evidence: testEvidence}, gen, &fakeStore{}, Options{
		GenerateTimeout: 20 * time.Millisecond,
	})

	err := s.Ask(context.Background(), Request{Key: testKey, Question: "q"}, rec.sink)
	assert.ErrorIs(t, err, errGenerateTimeout)
	assert.Equal(t, []EventType{EventError}, rec.types())
}

func TestAsk_EmptyQuestion(t *testing.T) {
	rec := &recorder{}
	err := newTestStreamer(&fakeGenerator{}, &fakeStore{}, fakeRetriever{}).
		Ask(context.Background(), Request{Key: testKey, Question: "   "}, rec.sink)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, rec.events)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
