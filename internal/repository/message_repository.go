package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveAnswer stores the user's question, the assistant's answer and the
// answer's citations atomically, and returns the answer's message ID.
func (r *MessageRepository) SaveAnswer(ctx context.Context, chatID uint, question, answer string, citations []model.Citation) (uint, error) {
	var answerID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userMsg := &model.Message{ChatID: chatID, Role: model.RoleUser, Content: question}
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		assistantMsg := &model.Message{ChatID: chatID, Role: model.RoleAssistant, Content: answer}
		if err := tx.Omit("Citations").Create(assistantMsg).Error; err != nil {
			return err
		}
		if len(citations) > 0 {
			rows := make([]model.Citation, len(citations))
			for i, c := range citations {
				rows[i] = c
				rows[i].ID = 0
				rows[i].MessageID = assistantMsg.ID
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Update("updated_at", time.Now()).Error; err != nil {
			return err
		}
		answerID = assistantMsg.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save answer failed: %w", err)
	}
	return answerID, nil
}

func (r *MessageRepository) ListByChatID(ctx context.Context, chatID uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Preload("Citations", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	// newest page fetched, returned oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
