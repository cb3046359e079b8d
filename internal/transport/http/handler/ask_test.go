package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/app"
	"docqa/internal/model"
	"docqa/internal/qa"
	"docqa/internal/transport/http/middleware"
)

type stubChats struct {
	created []*model.Chat
}

func (s *stubChats) Create(_ context.Context, chat *model.Chat) error {
	chat.ID = uint(len(s.created) + 41)
	s.created = append(s.created, chat)
	return nil
}

func (s *stubChats) ListByUserID(context.Context, uint, uint) ([]model.Chat, error) {
	return nil, nil
}

func (s *stubChats) GetByIDAndUserID(context.Context, uint, uint) (*model.Chat, error) {
	return nil, nil
}

func (s *stubChats) Delete(context.Context, uint) error { return nil }

type stubMessages struct{}

func (stubMessages) ListByChatID(context.Context, uint, int) ([]model.Message, error) {
	return nil, nil
}

type stubDocs struct{}

func (stubDocs) GetByIDAndUserID(_ context.Context, id, userID uint) (*model.Document, error) {
	if id != 9 || userID != 1 {
		return nil, nil
	}
	return &model.Document{ID: 9, UserID: 1, Title: "manual", Status: model.DocumentStatusDone}, nil
}

type scriptedStreamer struct {
	got    qa.Request
	events []qa.Event
}

func (s *scriptedStreamer) Ask(_ context.Context, req qa.Request, sink qa.Sink) error {
	s.got = req
	for _, ev := range s.events {
		if err := sink(ev); err != nil {
			return err
		}
	}
	return nil
}

func newAskRouter(streamer *scriptedStreamer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := app.NewChatService(&stubChats{}, stubMessages{}, stubDocs{}, streamer)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uint(1))
		c.Next()
	})
	router.POST("/ask", NewAskHandler(svc).Ask)
	return router
}

func readEvents(t *testing.T, body string) []qa.Event {
	t.Helper()
	var events []qa.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev qa.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestAskStreamsEventsAsSSE(t *testing.T) {
	streamer := &scriptedStreamer{events: []qa.Event{
		{Type: qa.EventToken, Text: "Net 30 "},
		{Type: qa.EventToken, Text: "[p. 2]"},
		{Type: qa.EventCitation, PageNumber: 2},
		{Type: qa.EventDone, MessageID: 7},
	}}
	router := newAskRouter(streamer)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"document_id":9,"question":"  What are the payment terms?  "}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "41", rec.Header().Get("X-Chat-ID"))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, qa.EventToken, events[0].Type)
	assert.Equal(t, 2, events[2].PageNumber)
	assert.Equal(t, qa.EventDone, events[3].Type)
	assert.Equal(t, uint(7), events[3].MessageID)

	assert.Equal(t, "What are the payment terms?", streamer.got.Question)
	assert.Equal(t, uint(9), streamer.got.Key.DocumentID)
	assert.Equal(t, uint(41), streamer.got.ChatID)
}

func TestAskRejectsUnknownDocumentBeforeStreaming(t *testing.T) {
	router := newAskRouter(&scriptedStreamer{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"document_id":10,"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestAskRequiresChatOrDocument(t *testing.T) {
	router := newAskRouter(&scriptedStreamer{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
