// Package qa runs one question through retrieval, evidence composition and
// streamed generation, then recovers citations from the answer and stores
// it.
//
// Every run ends in exactly one terminal event (done or error) unless the
// client goes away first. If the sink fails or the request context is
// canceled, the run is abandoned: generation stops, nothing is persisted and
// no further events are sent.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"docqa/internal/ai"
	"docqa/internal/evidence"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/retriever"
	"docqa/internal/vectorindex"
)

type State string

const (
	StateRetrieving State = "retrieving"
	StateComposing  State = "composing"
	StateGenerating State = "generating"
	StateExtracting State = "extracting"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateErrored    State = "errored"
)

const DefaultTopK = 8

var (
	ErrClientGone = errors.New("client disconnected")
	ErrEmptyQuery = errors.New("question is empty")

	errTokenTimeout    = errors.New("timed out waiting for the next token")
	errGenerateTimeout = errors.New("generation exceeded its time limit")
)

// Failure is returned by Ask after a terminal error event was sent.
type Failure struct {
	State State
	Code  string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s while %s: %v", f.Code, f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

type Retriever interface {
	Retrieve(ctx context.Context, key vectorindex.Key, question string, topK int) ([]retriever.Evidence, error)
}

type Generator interface {
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error)
}

// AnswerStore saves the question, the answer and its citations in one
// transaction and returns the answer's message id.
type AnswerStore interface {
	SaveAnswer(ctx context.Context, chatID uint, question, answer string, citations []model.Citation) (uint, error)
}

type Options struct {
	TopK             int
	Evidence         evidence.Options
	RetrievalTimeout time.Duration
	TokenTimeout     time.Duration
	GenerateTimeout  time.Duration
}

type Request struct {
	Key      vectorindex.Key
	ChatID   uint
	Question string
}

type Streamer struct {
	retriever Retriever
	generator Generator
	store     AnswerStore
	opts      Options
}

func NewStreamer(r Retriever, g Generator, store AnswerStore, opts Options) *Streamer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Streamer{
		retriever: r,
		generator: g,
		store:     store,
		opts:      opts,
	}
}

// Ask streams the answer to req into sink. It returns nil after a done
// event, a *Failure after an error event, and ErrClientGone when the run was
// abandoned.
func (s *Streamer) Ask(ctx context.Context, req Request, sink Sink) error {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return ErrEmptyQuery
	}
	req.Question = question

	r := &run{Streamer: s, req: req, sink: sink, state: StateRetrieving}
	err := r.execute(ctx)

	var failure *Failure
	switch {
	case err == nil:
		metrics.AskOutcomes.WithLabelValues("done").Inc()
	case errors.As(err, &failure):
		metrics.AskOutcomes.WithLabelValues(failure.Code).Inc()
		log.Printf("qa: chat %d document %s: %v", req.ChatID, req.Key, err)
	case errors.Is(err, ErrClientGone):
		metrics.AskOutcomes.WithLabelValues("abandoned").Inc()
		log.Printf("qa: chat %d document %s: abandoned while %s", req.ChatID, req.Key, r.state)
	}
	return err
}

type run struct {
	*Streamer
	req   Request
	sink  Sink
	state State
	gone  bool
}

func (r *run) execute(ctx context.Context) error {
	chunks, err := r.retrieve(ctx)
	if err != nil {
		if r.abandoned(ctx) {
			return ErrClientGone
		}
		if errors.Is(err, retriever.ErrNoEvidence) {
			return r.fail(CodeNoEvidence, "No relevant content found in the document.", err)
		}
		return r.fail(CodeUpstreamFailure, "Searching the document failed. Please try again.", err)
	}

	r.state = StateComposing
	pack, err := evidence.Compose(chunks, r.opts.Evidence)
	if err != nil {
		return r.fail(CodeInternal, "Preparing the evidence failed.", err)
	}

	r.state = StateGenerating
	answer, err := r.generate(ctx, pack)
	if err != nil {
		if r.abandoned(ctx) {
			return ErrClientGone
		}
		return r.fail(CodeUpstreamFailure, "The language model did not finish the answer. Please try again.", err)
	}

	r.state = StateExtracting
	// Only pages the model was shown can be cited. A page that was retrieved
	// but trimmed from the pack is dropped even if the answer names it.
	citations := ExtractCitations(answer, pack.Chunks)
	for _, c := range citations {
		if err := r.emit(citationEvent(c)); err != nil {
			return err
		}
	}

	r.state = StatePersisting
	if r.abandoned(ctx) {
		return ErrClientGone
	}
	messageID, err := r.store.SaveAnswer(ctx, r.req.ChatID, r.req.Question, answer, toModelCitations(citations))
	if err != nil {
		if r.abandoned(ctx) {
			return ErrClientGone
		}
		return r.fail(CodePersistenceFailed, "The answer was delivered but could not be saved.", err)
	}

	r.state = StateDone
	return r.emit(Event{Type: EventDone, MessageID: messageID})
}

func (r *run) retrieve(ctx context.Context) ([]retriever.Evidence, error) {
	if r.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RetrievalTimeout)
		defer cancel()
	}
	return r.retriever.Retrieve(ctx, r.req.Key, r.req.Question, r.opts.TopK)
}

// generate relays tokens as they arrive. The idle timer is re-armed on every
// token; both timers cancel the model call with a distinct cause.
func (r *run) generate(ctx context.Context, pack evidence.Pack) (string, error) {
	genCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if r.opts.GenerateTimeout > 0 {
		deadline := time.AfterFunc(r.opts.GenerateTimeout, func() { cancel(errGenerateTimeout) })
		defer deadline.Stop()
	}
	var idle *time.Timer
	if r.opts.TokenTimeout > 0 {
		idle = time.AfterFunc(r.opts.TokenTimeout, func() { cancel(errTokenTimeout) })
		defer idle.Stop()
	}

	answer, err := r.generator.StreamComplete(genCtx, BuildMessages(r.req.Question, pack.Text), func(token string) error {
		if idle != nil {
			idle.Reset(r.opts.TokenTimeout)
		}
		if err := r.emit(tokenEvent(token)); err != nil {
			cancel(ErrClientGone)
			return err
		}
		metrics.StreamedTokens.Inc()
		return nil
	})
	if err != nil {
		if cause := context.Cause(genCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return "", fmt.Errorf("%w: %v", cause, err)
		}
		return "", err
	}
	return answer, nil
}

func (r *run) emit(ev Event) error {
	if r.gone {
		return ErrClientGone
	}
	if err := r.sink(ev); err != nil {
		r.gone = true
		return ErrClientGone
	}
	return nil
}

func (r *run) abandoned(ctx context.Context) bool {
	return r.gone || ctx.Err() != nil
}

func (r *run) fail(code, message string, err error) error {
	failedIn := r.state
	r.state = StateErrored
	if emitErr := r.emit(errorEvent(code, message)); emitErr != nil {
		return emitErr
	}
	return &Failure{State: failedIn, Code: code, Err: err}
}
