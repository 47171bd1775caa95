package memory

import (
	"context"
	"sync"

	audit "patientregistry/pkg/platform/audit"
)

// InMemoryStore keeps audit events per patient. Used in development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.PatientID] = append(s.events[event.PatientID], event)
	return nil
}

// ListByPatient returns the events recorded for one patient in append order.
// Rejected registrations have no patient id and are listed under "".
func (s *InMemoryStore) ListByPatient(_ context.Context, patientID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[patientID]...), nil
}

// Count returns the total number of stored events.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, events := range s.events {
		n += len(events)
	}
	return n
}
