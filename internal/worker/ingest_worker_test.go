package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"docqa/internal/ingest"
)

type recordingAck struct {
	acks     []uint64
	nacks    []uint64
	requeued []uint64
}

func (a *recordingAck) Ack(tag uint64, _ bool) error {
	a.acks = append(a.acks, tag)
	return nil
}

func (a *recordingAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacks = append(a.nacks, tag)
	if requeue {
		a.requeued = append(a.requeued, tag)
	}
	return nil
}

func (a *recordingAck) Reject(tag uint64, _ bool) error {
	a.nacks = append(a.nacks, tag)
	return nil
}

type runnerFunc func(ctx context.Context, documentID uint) error

func (f runnerFunc) Run(ctx context.Context, documentID uint) error { return f(ctx, documentID) }

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func TestHandle_AcksAfterRun(t *testing.T) {
	var ran []uint
	w := NewIngestWorker(nil, runnerFunc(func(_ context.Context, id uint) error {
		ran = append(ran, id)
		return nil
	}), "q", 2)
	ack := &recordingAck{}

	w.handle(context.Background(), delivery(ack, 1, `{"job_id":"j1","document_id":42,"user_id":7}`))

	assert.Equal(t, []uint{42}, ran)
	assert.Equal(t, []uint64{1}, ack.acks)
	assert.Empty(t, ack.nacks)
}

func TestHandle_AcksFailedAndSkippedJobs(t *testing.T) {
	ack := &recordingAck{}
	w := NewIngestWorker(nil, runnerFunc(func(_ context.Context, id uint) error {
		if id == 1 {
			return ingest.ErrNotQueued
		}
		return errors.New("extract pages failed")
	}), "q", 1)

	w.handle(context.Background(), delivery(ack, 5, `{"document_id":1}`))
	w.handle(context.Background(), delivery(ack, 6, `{"document_id":2}`))

	assert.Equal(t, []uint64{5, 6}, ack.acks)
}

func TestHandle_NacksBadPayload(t *testing.T) {
	called := false
	ack := &recordingAck{}
	w := NewIngestWorker(nil, runnerFunc(func(context.Context, uint) error {
		called = true
		return nil
	}), "q", 1)

	w.handle(context.Background(), delivery(ack, 3, `not json`))
	w.handle(context.Background(), delivery(ack, 4, `{"job_id":"x"}`))

	assert.False(t, called)
	assert.Equal(t, []uint64{3, 4}, ack.nacks)
	assert.Empty(t, ack.requeued)
	assert.Empty(t, ack.acks)
}

func TestHandle_RequeuesFailedClaim(t *testing.T) {
	ack := &recordingAck{}
	w := NewIngestWorker(nil, runnerFunc(func(context.Context, uint) error {
		return fmt.Errorf("%w: acquire ingest lock: i/o timeout", ingest.ErrClaimFailed)
	}), "q", 1)

	w.handle(context.Background(), delivery(ack, 8, `{"job_id":"j8","document_id":11}`))

	assert.Equal(t, []uint64{8}, ack.requeued)
	assert.Empty(t, ack.acks)
}
