package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, insertBatchSize).Error; err != nil {
		return fmt.Errorf("create chunks failed: %w", err)
	}
	return nil
}

// GetByVectorIDs resolves index hits back to chunk rows. Order is not
// preserved and ids without a row are simply absent.
func (r *ChunkRepository) GetByVectorIDs(ctx context.Context, documentID uint, vectorIDs []int) ([]model.Chunk, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).Where("document_id = ? AND vector_id IN ?", documentID, vectorIDs).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("get chunks by vector ids failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}
