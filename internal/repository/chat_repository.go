package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

// ListByUserID lists the user's chats, newest first. documentID 0 means all
// documents.
func (r *ChatRepository) ListByUserID(ctx context.Context, userID, documentID uint) ([]model.Chat, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if documentID != 0 {
		q = q.Where("document_id = ?", documentID)
	}
	var chats []model.Chat
	if err := q.Order("updated_at DESC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

func (r *ChatRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := tx.Model(&model.Message{}).Select("id").Where("chat_id = ?", id)
		if err := tx.Where("message_id IN (?)", messages).Delete(&model.Citation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Chat{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete chat failed: %w", err)
	}
	return nil
}
