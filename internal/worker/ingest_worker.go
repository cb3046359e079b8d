package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/ingest"
	"docqa/internal/model"
	"docqa/internal/platform/rabbitmq"
)

type JobRunner interface {
	Run(ctx context.Context, documentID uint) error
}

// IngestWorker consumes ingestion jobs with a fixed number of goroutines.
// Prefetch equals the pool size, so the broker never hands this process more
// jobs than it can run at once.
type IngestWorker struct {
	conn      *amqp.Connection
	runner    JobRunner
	queueName string
	poolSize  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner JobRunner, queueName string, poolSize int) *IngestWorker {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &IngestWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
		poolSize:  poolSize,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.poolSize, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.poolSize; i++ {
		consumers.Add(1)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer consumers.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(workerCtx, d)
				}
			}
		}()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	log.Printf("ingest worker consuming %s with %d workers", w.queueName, w.poolSize)
	return nil
}

// handle runs one job. Jobs are acked once the runner returns: failures are
// recorded on the document and retried only on request. A job that could
// not claim its document is requeued. Undecodable payloads are dropped.
func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job model.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.DocumentID == 0 {
		log.Printf("ingest worker decode job failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	err := w.runner.Run(ctx, job.DocumentID)
	switch {
	case errors.Is(err, ingest.ErrClaimFailed):
		log.Printf("ingest worker job %s: %v, requeueing", job.JobID, err)
		_ = d.Nack(false, true)
		return
	case err == nil:
	case errors.Is(err, ingest.ErrNotQueued):
		log.Printf("ingest worker job %s: document %d not queued, skipping", job.JobID, job.DocumentID)
	default:
		log.Printf("ingest worker job %s: %v", job.JobID, err)
	}
	_ = d.Ack(false)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
