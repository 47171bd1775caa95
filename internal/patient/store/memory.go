package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"patientregistry/internal/patient/models"
	"patientregistry/internal/patient/phone"
	id "patientregistry/pkg/domain"
	"patientregistry/pkg/platform/sentinel"
)

// InMemory is a map-backed patient store with a unique index on the normalized
// phone number. Records are returned as copies so callers cannot mutate store
// state without Save.
type InMemory struct {
	mu       sync.RWMutex
	patients map[id.PatientID]*models.Patient
	order    []id.PatientID
	byPhone  map[string]id.PatientID
}

func NewInMemory() *InMemory {
	return &InMemory{
		patients: make(map[id.PatientID]*models.Patient),
		byPhone:  make(map[string]id.PatientID),
	}
}

// FindAll returns every record in insertion order.
func (s *InMemory) FindAll(_ context.Context) ([]*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Patient, 0, len(s.order))
	for _, pid := range s.order {
		out = append(out, s.patients[pid].Clone())
	}
	return out, nil
}

func (s *InMemory) FindByID(_ context.Context, patientID id.PatientID) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.patients[patientID]; ok {
		return p.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ExistsByPhoneNumber(_ context.Context, phoneNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPhone[phone.Normalize(phoneNumber)]
	return ok, nil
}

func (s *InMemory) FindByPhoneNumber(_ context.Context, phoneNumber string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pid, ok := s.byPhone[phone.Normalize(phoneNumber)]; ok {
		return s.patients[pid].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// Save inserts a record without an ID (assigning a UUID) or replaces the record
// with the given ID. Returns sentinel.ErrAlreadyUsed when another record holds
// the normalized phone number.
func (s *InMemory) Save(_ context.Context, patient *models.Patient) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := phone.Normalize(patient.PhoneNumber)
	owner, taken := s.byPhone[key]

	if patient.ID.IsZero() {
		if taken {
			return nil, sentinel.ErrAlreadyUsed
		}
		stored := patient.Clone()
		stored.ID = id.PatientID(uuid.NewString())
		s.patients[stored.ID] = stored
		s.order = append(s.order, stored.ID)
		s.byPhone[key] = stored.ID
		return stored.Clone(), nil
	}

	existing, ok := s.patients[patient.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if taken && owner != patient.ID {
		return nil, sentinel.ErrAlreadyUsed
	}
	delete(s.byPhone, phone.Normalize(existing.PhoneNumber))
	stored := patient.Clone()
	s.patients[stored.ID] = stored
	s.byPhone[key] = stored.ID
	return stored.Clone(), nil
}

func (s *InMemory) DeleteByID(_ context.Context, patientID id.PatientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.patients[patientID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.patients, patientID)
	delete(s.byPhone, phone.Normalize(existing.PhoneNumber))
	s.order = slices.DeleteFunc(s.order, func(pid id.PatientID) bool { return pid == patientID })
	return nil
}

// Health always succeeds for the in-memory store.
func (s *InMemory) Health(context.Context) error {
	return nil
}
