package model

import "time"

type Message struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ChatID    uint       `gorm:"not null;index" json:"chat_id"`
	Role      string     `gorm:"size:16;not null;index" json:"role"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Citations []Citation `gorm:"foreignKey:MessageID" json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Citation links an assistant message to the page (and span) backing it.
type Citation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MessageID  uint      `gorm:"not null;index" json:"message_id"`
	PageNumber int       `gorm:"not null" json:"page_number"`
	CharStart  *int      `json:"char_start,omitempty"`
	CharEnd    *int      `json:"char_end,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
