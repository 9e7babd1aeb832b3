// Package store persists scored events. The event id is the idempotency
// key: writes are first-writer-wins, so concurrent or redelivered writers
// never corrupt an existing record.
package store

import (
	"context"

	"emotion-pulse/backend/internal/models"
)

// EventStore is the persistence surface shared by the worker and the
// batch jobs.
type EventStore interface {
	// Put inserts the event unless a record with the same event id already
	// exists. Returns true when this call created the record.
	Put(ctx context.Context, event *models.Event) (bool, error)

	// Exists reports whether a record for the event id is present.
	Exists(ctx context.Context, eventID string) (bool, error)

	// GetByUserRange returns a user's records with timestamp in [from, to],
	// ordered by timestamp.
	GetByUserRange(ctx context.Context, userID string, from, to int64) ([]models.Event, error)

	// GetByDate returns every record whose date bucket equals date, ordered
	// by timestamp.
	GetByDate(ctx context.Context, date string) ([]models.Event, error)

	// ForEachBatch scans the whole store in batches for the export job.
	ForEachBatch(ctx context.Context, batchSize int, fn func(events []models.Event) error) error

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error

	Close() error
}
