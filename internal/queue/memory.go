package queue

import (
	"context"
	"sync"

	"emotion-pulse/backend/internal/models"

	"github.com/google/uuid"
)

// MemoryQueue is an in-memory Queue with the same ordering, dedup,
// single-in-flight and dead-letter semantics as the Redis implementation.
// Used by tests and local runs.
type MemoryQueue struct {
	mu          sync.Mutex
	maxAttempts int

	groups     map[string][]models.QueueMessage
	groupOrder []string
	locks      map[string]string
	attempts   map[string]int
	seen       map[string]bool
	dlq        []models.QueueMessage
}

// NewMemoryQueue creates an empty queue dead-lettering after maxAttempts
// deliveries.
func NewMemoryQueue(maxAttempts int) *MemoryQueue {
	return &MemoryQueue{
		maxAttempts: maxAttempts,
		groups:      make(map[string][]models.QueueMessage),
		locks:       make(map[string]string),
		attempts:    make(map[string]int),
		seen:        make(map[string]bool),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg models.QueueMessage) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[msg.EventID] {
		return false, nil
	}
	q.seen[msg.EventID] = true

	group := msg.Group()
	if _, exists := q.groups[group]; !exists {
		q.groupOrder = append(q.groupOrder, group)
	}
	q.groups[group] = append(q.groups[group], msg)
	return true, nil
}

func (q *MemoryQueue) Receive(_ context.Context) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, group := range q.groupOrder {
		if _, held := q.locks[group]; held || len(q.groups[group]) == 0 {
			continue
		}

		msg := q.groups[group][0]
		q.attempts[msg.EventID]++
		attempt := q.attempts[msg.EventID]

		if attempt > q.maxAttempts {
			q.dlq = append(q.dlq, msg)
			q.groups[group] = q.groups[group][1:]
			delete(q.attempts, msg.EventID)
			continue
		}

		token := uuid.New().String()
		q.locks[group] = token
		return &Delivery{Message: msg, Attempt: attempt, token: token}, nil
	}
	return nil, nil
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	group := d.Message.Group()
	if q.locks[group] != d.token {
		// Lock lost to a redelivery; the new holder owns the group now.
		return nil
	}
	if msgs := q.groups[group]; len(msgs) > 0 && msgs[0].EventID == d.Message.EventID {
		q.groups[group] = msgs[1:]
	}
	delete(q.attempts, d.Message.EventID)
	delete(q.locks, group)
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	group := d.Message.Group()
	if q.locks[group] == d.token {
		delete(q.locks, group)
	}
	return nil
}

func (q *MemoryQueue) DeadLetters(context.Context) ([]models.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueueMessage, len(q.dlq))
	copy(out, q.dlq)
	return out, nil
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func (q *MemoryQueue) Close() error { return nil }

// Pending reports how many messages are waiting across all groups.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, msgs := range q.groups {
		n += len(msgs)
	}
	return n
}

// ExpireVisibility simulates a stalled consumer whose visibility window
// lapsed: the group becomes deliverable again without an Ack or Nack, and
// the stalled delivery's token no longer owns the lock.
func (q *MemoryQueue) ExpireVisibility(group string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.locks, group)
}
