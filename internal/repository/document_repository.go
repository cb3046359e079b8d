package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

var ErrNotFound = errors.New("record not found")

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByID is used by ingestion; a missing row is an error there.
func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// GetByIDAndUserID returns nil, nil when the user owns no such document.
func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

// TryStart is the queued -> running check-and-set.
func (r *DocumentRepository) TryStart(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusQueued).
		Update("status", model.DocumentStatusRunning)
	if res.Error != nil {
		return false, fmt.Errorf("start document ingestion failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *DocumentRepository) MarkDone(ctx context.Context, id uint, pageCount int) error {
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.DocumentStatusDone,
		"page_count":    pageCount,
		"error_message": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("mark document done failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkError(ctx context.Context, id uint, message string) error {
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.DocumentStatusError,
		"error_message": message,
	}).Error
	if err != nil {
		return fmt.Errorf("mark document error failed: %w", err)
	}
	return nil
}

// FailQueued records an error on a document that never left queued.
func (r *DocumentRepository) FailQueued(ctx context.Context, id uint, message string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusQueued).
		Updates(map[string]interface{}{
			"status":        model.DocumentStatusError,
			"error_message": message,
		})
	if res.Error != nil {
		return false, fmt.Errorf("fail queued document failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ResetForRetry moves a finished or failed document back to queued. It
// reports false when the document is still queued or running.
func (r *DocumentRepository) ResetForRetry(ctx context.Context, id, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, []string{model.DocumentStatusDone, model.DocumentStatusError}).
		Updates(map[string]interface{}{
			"status":        model.DocumentStatusQueued,
			"error_message": nil,
			"page_count":    nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("reset document failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Delete removes the document with its pages, chunks, chats, messages and
// citations in one transaction.
func (r *DocumentRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chats := tx.Model(&model.Chat{}).Select("id").Where("document_id = ?", id)
		messages := tx.Model(&model.Message{}).Select("id").Where("chat_id IN (?)", chats)
		if err := tx.Where("message_id IN (?)", messages).Delete(&model.Citation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id IN (?)", chats).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Chat{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Page{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Document{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
