package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"docqa/internal/model"
	"docqa/internal/qa"
	"docqa/internal/vectorindex"
)

const chatTitleRunes = 60

type ChatRepo interface {
	Create(ctx context.Context, chat *model.Chat) error
	ListByUserID(ctx context.Context, userID, documentID uint) ([]model.Chat, error)
	GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Chat, error)
	Delete(ctx context.Context, id uint) error
}

type MessageRepo interface {
	ListByChatID(ctx context.Context, chatID uint, limit int) ([]model.Message, error)
}

type DocumentLookup interface {
	GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Document, error)
}

type AnswerStreamer interface {
	Ask(ctx context.Context, req qa.Request, sink qa.Sink) error
}

type ChatService struct {
	chats    ChatRepo
	messages MessageRepo
	docs     DocumentLookup
	streamer AnswerStreamer
}

func NewChatService(chats ChatRepo, messages MessageRepo, docs DocumentLookup, streamer AnswerStreamer) *ChatService {
	return &ChatService{
		chats:    chats,
		messages: messages,
		docs:     docs,
		streamer: streamer,
	}
}

type CreateChatInput struct {
	UserID     uint
	DocumentID uint
	Title      string
}

func (s *ChatService) CreateChat(ctx context.Context, input CreateChatInput) (*model.Chat, error) {
	if input.UserID == 0 || input.DocumentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(ctx, input.DocumentID, input.UserID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Chat about " + doc.Title
	}
	chat := &model.Chat{UserID: input.UserID, DocumentID: doc.ID, Title: shorten(title, chatTitleRunes)}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, userID, documentID uint) ([]model.Chat, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.chats.ListByUserID(ctx, userID, documentID)
}

func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID uint) error {
	chat, err := s.getChat(ctx, userID, chatID)
	if err != nil {
		return err
	}
	return s.chats.Delete(ctx, chat.ID)
}

func (s *ChatService) ListMessages(ctx context.Context, userID, chatID uint, limit int) ([]model.Message, error) {
	chat, err := s.getChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByChatID(ctx, chat.ID, limit)
}

type AskInput struct {
	UserID     uint
	ChatID     uint
	DocumentID uint
	Question   string
}

// PrepareAsk validates ownership and resolves the chat to answer into. When
// no chat is given, a new one is opened on DocumentID, titled after the
// question.
func (s *ChatService) PrepareAsk(ctx context.Context, input AskInput) (qa.Request, *model.Chat, error) {
	question := strings.TrimSpace(input.Question)
	if input.UserID == 0 || question == "" {
		return qa.Request{}, nil, ErrInvalidInput
	}

	var (
		chat *model.Chat
		err  error
	)
	if input.ChatID != 0 {
		chat, err = s.getChat(ctx, input.UserID, input.ChatID)
		if err != nil {
			return qa.Request{}, nil, err
		}
		if input.DocumentID != 0 && input.DocumentID != chat.DocumentID {
			return qa.Request{}, nil, ErrInvalidInput
		}
	} else {
		chat, err = s.CreateChat(ctx, CreateChatInput{UserID: input.UserID, DocumentID: input.DocumentID, Title: question})
		if err != nil {
			return qa.Request{}, nil, err
		}
	}

	return qa.Request{
		Key:      vectorindex.Key{UserID: chat.UserID, DocumentID: chat.DocumentID},
		ChatID:   chat.ID,
		Question: question,
	}, chat, nil
}

func (s *ChatService) Ask(ctx context.Context, req qa.Request, sink qa.Sink) error {
	return s.streamer.Ask(ctx, req, sink)
}

func (s *ChatService) getChat(ctx context.Context, userID, chatID uint) (*model.Chat, error) {
	if userID == 0 || chatID == 0 {
		return nil, ErrInvalidInput
	}
	chat, err := s.chats.GetByIDAndUserID(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n-1])) + "…"
}
