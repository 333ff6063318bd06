package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"tasktrail/pkg/activity"
)

// InMemoryStore keeps events in append order for dev and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []activity.Event
	now    func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

// WithClock replaces the receipt-time clock.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Append(_ context.Context, ev activity.Event) (activity.Event, error) {
	ev, err := prepare(ev, s.now)
	if err != nil {
		return activity.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	out := ev
	out.Payload = clonePayload(ev.Payload)
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]activity.Event, error) {
	s.mu.RLock()
	out := make([]activity.Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		ev.Payload = clonePayload(ev.Payload)
		out = append(out, ev)
	}
	s.mu.RUnlock()

	// reversed append order + stable sort keeps later appends first on ties
	slices.SortStableFunc(out, func(a, b activity.Event) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	return out, nil
}

// Len reports the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
