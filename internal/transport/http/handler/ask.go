package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/qa"
	"docqa/internal/transport/http/response"
)

type AskHandler struct {
	chatService *app.ChatService
}

// AskRequest needs either chat_id or document_id; without a chat a new one
// is opened.
type AskRequest struct {
	ChatID     uint   `json:"chat_id"`
	DocumentID uint   `json:"document_id"`
	Question   string `json:"question" binding:"required,max=2000"`
}

func NewAskHandler(chatService *app.ChatService) *AskHandler {
	return &AskHandler{chatService: chatService}
}

// Ask streams the answer as server-sent events, one JSON event per
// "data:" frame. Validation errors are ordinary JSON responses; once the
// stream has started every outcome is reported in-band.
func (h *AskHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.ChatID == 0 && req.DocumentID == 0) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	ctx := c.Request.Context()
	askReq, chat, err := h.chatService.PrepareAsk(ctx, app.AskInput{
		UserID:     userID,
		ChatID:     req.ChatID,
		DocumentID: req.DocumentID,
		Question:   req.Question,
	})
	if err != nil {
		writeServiceError(c, err, "ask failed")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Chat-ID", formatUint(chat.ID))
	c.Status(http.StatusOK)

	_ = h.chatService.Ask(ctx, askReq, func(ev qa.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}
