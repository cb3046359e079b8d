package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateChatRequest struct {
	DocumentID uint   `json:"document_id" binding:"required,gt=0"`
	Title      string `json:"title" binding:"max=128"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req CreateChatRequest
	if !bindJSON(c, &req) {
		return
	}

	chat, err := h.chatService.CreateChat(c.Request.Context(), app.CreateChatInput{
		UserID:     userID,
		DocumentID: req.DocumentID,
		Title:      req.Title,
	})
	if err != nil {
		writeServiceError(c, err, "create chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), userID, parseUintQuery(c, "document_id"))
	if err != nil {
		writeServiceError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	chatID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat id")
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		writeServiceError(c, err, "delete chat failed")
		return
	}
	response.OK(c, gin.H{"deleted_chat_id": chatID})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	chatID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), userID, chatID, limit)
	if err != nil {
		writeServiceError(c, err, "list messages failed")
		return
	}
	response.OK(c, messages)
}
