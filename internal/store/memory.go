package store

import (
	"context"
	"sort"
	"sync"

	"emotion-pulse/backend/internal/models"
)

// MemoryEventStore is an in-memory EventStore used by tests and local runs
// without a database.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]models.Event
}

// NewMemoryEventStore creates an empty in-memory store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]models.Event)}
}

func (s *MemoryEventStore) Put(_ context.Context, event *models.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.EventID]; exists {
		return false, nil
	}
	s.events[event.EventID] = *event
	return true, nil
}

func (s *MemoryEventStore) Exists(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.events[eventID]
	return exists, nil
}

func (s *MemoryEventStore) GetByUserRange(_ context.Context, userID string, from, to int64) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range s.events {
		if e.UserID == userID && e.Timestamp >= from && e.Timestamp <= to {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

func (s *MemoryEventStore) GetByDate(_ context.Context, date string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range s.events {
		if e.Date == date {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

func (s *MemoryEventStore) ForEachBatch(_ context.Context, batchSize int, fn func(events []models.Event) error) error {
	s.mu.RLock()
	all := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		all = append(all, e)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].EventID < all[j].EventID })

	for start := 0; start < len(all); start += batchSize {
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryEventStore) Ping(context.Context) error { return nil }

func (s *MemoryEventStore) Close() error { return nil }

// Len reports the number of stored records.
func (s *MemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func sortByTimestamp(events []models.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp == events[j].Timestamp {
			return events[i].EventID < events[j].EventID
		}
		return events[i].Timestamp < events[j].Timestamp
	})
}
