package model

import "time"

// Chunk is the unit of retrieval. VectorID is the chunk's position in the
// document's vector index; per document the ids form the range [0, N).
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_chunk_doc_vector" json:"document_id"`
	PageID     uint      `gorm:"not null;index" json:"page_id"`
	PageNumber int       `gorm:"not null" json:"page_number"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CharStart  int       `gorm:"not null" json:"char_start"`
	CharEnd    int       `gorm:"not null" json:"char_end"`
	VectorID   int       `gorm:"not null;uniqueIndex:idx_chunk_doc_vector" json:"vector_id"`
	CreatedAt  time.Time `json:"created_at"`
}
