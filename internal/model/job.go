package model

import "time"

// IngestJob is the queue payload asking a worker to ingest one document.
type IngestJob struct {
	JobID      string    `json:"job_id"`
	DocumentID uint      `json:"document_id"`
	UserID     uint      `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
