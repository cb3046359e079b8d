package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/model"
)

type IngestPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestPublisher(conn *amqp.Connection, queueName string) *IngestPublisher {
	return &IngestPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// PublishIngest enqueues an ingestion job for the document and returns the
// job ID.
func (p *IngestPublisher) PublishIngest(ctx context.Context, documentID, userID uint) (string, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return "", fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	job := model.IngestJob{
		JobID:      uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal ingest job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    job.JobID,
			Timestamp:    job.EnqueuedAt,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return "", fmt.Errorf("publish ingest job failed: %w", err)
	}
	return job.JobID, nil
}
