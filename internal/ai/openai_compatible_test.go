package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
}

func delta(text string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, text)
}

func TestStreamComplete_RelaysDeltas(t *testing.T) {
	srv := streamServer(t, []string{delta("Stress "), `{"choices":[]}`, delta("is force [p. 3]."), "[DONE]", delta("ignored")})
	defer srv.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "test-model"}, EmbeddingConfig{})
	var got []string
	full, err := client.StreamComplete(context.Background(), []ChatMessage{{Role: "user", Content: "q"}}, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Stress ", "is force [p. 3]."}, got)
	assert.Equal(t, "Stress is force [p. 3].", full)
}

func TestStreamComplete_StopsWhenSinkFails(t *testing.T) {
	srv := streamServer(t, []string{delta("a"), delta("b"), "[DONE]"})
	defer srv.Close()

	sinkErr := errors.New("client gone")
	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "test-model"}, EmbeddingConfig{})
	calls := 0
	_, err := client.StreamComplete(context.Background(), nil, func(string) error {
		calls++
		return sinkErr
	})
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, calls)
}

func TestStreamComplete_TruncatedStreamFails(t *testing.T) {
	srv := streamServer(t, []string{delta("Stress is")})
	defer srv.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "test-model"}, EmbeddingConfig{})
	var got []string
	full, err := client.StreamComplete(context.Background(), nil, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	assert.ErrorIs(t, err, ErrStreamTruncated)
	assert.Empty(t, full)
	assert.Equal(t, []string{"Stress is"}, got)
}

func TestStreamComplete_FinishReasonEndsStream(t *testing.T) {
	srv := streamServer(t, []string{
		delta("Net 30 [p. 2]."),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	})
	defer srv.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "test-model"}, EmbeddingConfig{})
	full, err := client.StreamComplete(context.Background(), nil, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "Net 30 [p. 2].", full)
}

func TestStreamComplete_UpstreamErrorFrame(t *testing.T) {
	srv := streamServer(t, []string{delta("partial"), `{"error":{"message":"overloaded"}}`})
	defer srv.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "test-model"}, EmbeddingConfig{})
	_, err := client.StreamComplete(context.Background(), nil, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestStreamComplete_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL, Model: "m"}, EmbeddingConfig{})
	_, err := client.StreamComplete(context.Background(), nil, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEmbedBatch_RestoresInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "embed-model", body.Model)
		assert.Len(t, body.Input, 2)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClient(ChatConfig{}, EmbeddingConfig{BaseURL: srv.URL, Model: "embed-model"})
	vectors, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbedBatch_RejectsEmptyInput(t *testing.T) {
	client := NewOpenAICompatibleClient(ChatConfig{}, EmbeddingConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.EmbedBatch(context.Background(), []string{"ok", "  "})
	assert.Error(t, err)
}
