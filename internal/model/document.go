package model

import "time"

const (
	DocumentStatusQueued  = "queued"
	DocumentStatusRunning = "running"
	DocumentStatusDone    = "done"
	DocumentStatusError   = "error"
)

// Document is an uploaded file and its ingestion lifecycle.
type Document struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	Title        string    `gorm:"size:256;not null" json:"title"`
	Filename     string    `gorm:"size:256;not null" json:"filename"`
	ContentType  string    `gorm:"size:64;not null" json:"content_type"`
	StorageKey   string    `gorm:"size:512;not null" json:"-"`
	Status       string    `gorm:"size:16;not null;index" json:"status"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	PageCount    *int      `json:"page_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Page holds the extracted plain text of one page.
type Page struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_page_doc_number" json:"document_id"`
	PageNumber int       `gorm:"not null;uniqueIndex:idx_page_doc_number" json:"page_number"`
	Text       string    `gorm:"type:mediumtext;not null" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
