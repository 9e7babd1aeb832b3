// Package queue delivers events to the scoring worker preserving
// per-conversation order. Messages sharing an ordering group are delivered
// in enqueue order with at most one in flight; delivery is at-least-once,
// so consumers must be idempotent keyed on the event id.
package queue

import (
	"context"

	"emotion-pulse/backend/internal/models"
)

// Delivery is one received message plus its delivery metadata.
type Delivery struct {
	Message models.QueueMessage
	// Attempt is 1 on first delivery and grows on each redelivery.
	Attempt int

	// token identifies the lock this delivery holds on its group. Ack and
	// Nack act only while the token still owns the lock, so a consumer whose
	// visibility window lapsed cannot disturb the group after redelivery.
	token string
	// payload is the raw enqueued form, used to fence the ack against the
	// current group head.
	payload string
}

// Queue is the transport between ingestion and scoring.
type Queue interface {
	// Enqueue adds a message to its ordering group. Returns false when the
	// event id was already enqueued recently (retried webhook delivery).
	Enqueue(ctx context.Context, msg models.QueueMessage) (bool, error)

	// Receive returns the next deliverable message, or nil when every group
	// is either empty or already has a message in flight. Receiving locks
	// the message's group until Ack or Nack (or the visibility window
	// lapses). Messages whose attempt count exceeds the configured maximum
	// are moved to the dead-letter path instead of being delivered again.
	Receive(ctx context.Context) (*Delivery, error)

	// Ack removes the delivered message and unlocks its group.
	Ack(ctx context.Context, d *Delivery) error

	// Nack unlocks the group leaving the message at the head, so it is
	// redelivered.
	Nack(ctx context.Context, d *Delivery) error

	// DeadLetters returns the messages parked for manual inspection.
	DeadLetters(ctx context.Context) ([]models.QueueMessage, error)

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error

	Close() error
}
