//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"patientregistry/internal/patient/models"
	"patientregistry/pkg/platform/sentinel"
)

// backendContract is the behaviour every persistent Backend shares. Concrete
// suites embed it and set store and reset.
type backendContract struct {
	suite.Suite
	store Backend
	reset func(ctx context.Context) error
}

func (s *backendContract) SetupTest() {
	s.Require().NoError(s.reset(context.Background()))
}

func stamped(name, phoneNumber string) *models.Patient {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := newPatient(name, phoneNumber)
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

func (s *backendContract) TestInsertAndFind() {
	ctx := context.Background()

	saved, err := s.store.Save(ctx, stamped("John", "(611)67-890"))
	s.Require().NoError(err)
	s.Require().False(saved.ID.IsZero())

	found, err := s.store.FindByID(ctx, saved.ID)
	s.Require().NoError(err)
	s.Equal(saved.Name, found.Name)
	s.Equal("(611)67-890", found.PhoneNumber)
	s.WithinDuration(saved.CreatedAt, found.CreatedAt, time.Millisecond)

	byPhone, err := s.store.FindByPhoneNumber(ctx, "61167890")
	s.Require().NoError(err)
	s.Equal(saved.ID, byPhone.ID)

	exists, err := s.store.ExistsByPhoneNumber(ctx, "+611 67 890")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *backendContract) TestMissingRecords() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, "not-an-id")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByPhoneNumber(ctx, "123")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.DeleteByID(ctx, "not-an-id"), sentinel.ErrNotFound)

	ghost := stamped("Ghost", "999")
	ghost.ID = "not-an-id"
	_, err = s.store.Save(ctx, ghost)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *backendContract) TestUpdateAndDelete() {
	ctx := context.Background()

	saved, err := s.store.Save(ctx, stamped("John", "911"))
	s.Require().NoError(err)

	saved.Name = "New John"
	saved.PhoneNumber = "922"
	updated, err := s.store.Save(ctx, saved)
	s.Require().NoError(err)
	s.Equal(saved.ID, updated.ID)

	exists, err := s.store.ExistsByPhoneNumber(ctx, "911")
	s.Require().NoError(err)
	s.False(exists, "old number is released")

	found, err := s.store.FindByID(ctx, saved.ID)
	s.Require().NoError(err)
	s.Equal("New John", found.Name)

	s.Require().NoError(s.store.DeleteByID(ctx, saved.ID))
	_, err = s.store.FindByID(ctx, saved.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *backendContract) TestFindAllOrder() {
	ctx := context.Background()
	for _, p := range []*models.Patient{stamped("a", "901"), stamped("b", "902"), stamped("c", "903")} {
		_, err := s.store.Save(ctx, p)
		s.Require().NoError(err)
	}

	all, err := s.store.FindAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"a", "b", "c"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func (s *backendContract) TestUniquePhoneIndex() {
	ctx := context.Background()

	_, err := s.store.Save(ctx, stamped("John", "911"))
	s.Require().NoError(err)

	_, err = s.store.Save(ctx, stamped("Mary", "(9)1-1"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	other, err := s.store.Save(ctx, stamped("Mary", "922"))
	s.Require().NoError(err)
	other.PhoneNumber = "911"
	_, err = s.store.Save(ctx, other)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

// TestConcurrentInsertSameNumber verifies exactly one insert wins at the store boundary.
func (s *backendContract) TestConcurrentInsertSameNumber() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Save(ctx, stamped("John", "555-0100"))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one insert should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")
}
