package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/MrEthical07/goGuard/events"
)

// EventStore implements events.Store. When capacity is positive the oldest
// events are discarded beyond it.
type EventStore struct {
	mu       sync.RWMutex
	events   []events.Event
	capacity int
}

// NewEventStore returns an empty store.
func NewEventStore(capacity int) *EventStore {
	return &EventStore{capacity: capacity}
}

// Save implements events.Store.
func (s *EventStore) Save(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.capacity > 0 && len(s.events) > s.capacity {
		s.events = append([]events.Event(nil), s.events[len(s.events)-s.capacity:]...)
	}
	return nil
}

// Query implements events.Store.
func (s *EventStore) Query(_ context.Context, q events.Query) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, ev := range s.events {
		if q.Matches(ev) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
