package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

const insertBatchSize = 200

type PageRepository struct {
	db *gorm.DB
}

func NewPageRepository(db *gorm.DB) *PageRepository {
	return &PageRepository{db: db}
}

// CreateBatch inserts pages and fills in their IDs.
func (r *PageRepository) CreateBatch(ctx context.Context, pages []model.Page) error {
	if len(pages) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&pages, insertBatchSize).Error; err != nil {
		return fmt.Errorf("create pages failed: %w", err)
	}
	return nil
}

func (r *PageRepository) ListByDocumentID(ctx context.Context, documentID uint) ([]model.Page, error) {
	var pages []model.Page
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("page_number ASC").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list pages failed: %w", err)
	}
	return pages, nil
}

func (r *PageRepository) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Page{}).Error; err != nil {
		return fmt.Errorf("delete pages by document failed: %w", err)
	}
	return nil
}
