package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patientregistry/internal/patient/models"
	"patientregistry/internal/patient/store"
	id "patientregistry/pkg/domain"
	dErrors "patientregistry/pkg/domain-errors"
	"patientregistry/pkg/platform/audit"
	"patientregistry/pkg/platform/audit/publisher"
	auditmemory "patientregistry/pkg/platform/audit/store/memory"
	"patientregistry/pkg/testutil"
)

// These tests run the registry against the in-memory store end to end.

func TestRegistryScenario(t *testing.T) {
	ctx := context.Background()
	auditStore := auditmemory.NewInMemoryStore()
	svc := New(store.NewInMemory(), WithAuditPublisher(publisher.NewPublisher(auditStore)))

	var johnID string

	testutil.Given(t, "an empty registry", func(t *testing.T) {
		testutil.When(t, "John registers", func(t *testing.T) {
			got, err := svc.Register(ctx, models.RegistrationRequest{Name: "John", PhoneNumber: "(611)67-890", Email: "john@x.com"})
			require.NoError(t, err)
			require.False(t, got.ID.IsZero())
			johnID = got.ID.String()

			testutil.Then(t, "the record round-trips through GetByID", func(t *testing.T) {
				found, err := svc.GetByID(ctx, got.ID)
				require.NoError(t, err)
				assert.Equal(t, got, found)
			})
		})

		testutil.When(t, "John registers again with the same number", func(t *testing.T) {
			_, err := svc.Register(ctx, models.RegistrationRequest{Name: "John", PhoneNumber: "(611)67-890", Email: "john@x.com"})
			testutil.Then(t, "it is already registered", func(t *testing.T) {
				require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
				assert.Equal(t, "patient already registered", dErrors.MessageOf(err))
			})
		})

		testutil.When(t, "Mary registers with John's number", func(t *testing.T) {
			_, err := svc.Register(ctx, models.RegistrationRequest{Name: "Mary", PhoneNumber: "611 67 890", Email: "mary@x.com"})
			testutil.Then(t, "the number is already taken", func(t *testing.T) {
				require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
				assert.Equal(t, "phone number already taken", dErrors.MessageOf(err))
			})
		})

		testutil.When(t, "John is renamed", func(t *testing.T) {
			pid := id.PatientID(johnID)
			_, err := svc.Update(ctx, pid, models.RegistrationRequest{Name: "New John", PhoneNumber: "(611)67-890", Email: "john@x.com"})
			require.NoError(t, err)

			testutil.Then(t, "GetByID reflects the new name", func(t *testing.T) {
				found, err := svc.GetByID(ctx, pid)
				require.NoError(t, err)
				assert.Equal(t, "New John", found.Name)
			})
		})

		testutil.When(t, "John is removed", func(t *testing.T) {
			pid := id.PatientID(johnID)
			require.NoError(t, svc.Remove(ctx, pid))

			testutil.Then(t, "GetByID is not found", func(t *testing.T) {
				_, err := svc.GetByID(ctx, pid)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
			})
		})
	})

	events, err := auditStore.ListByPatient(ctx, johnID)
	require.NoError(t, err)
	var actions []string
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		string(audit.EventPatientRegistered),
		string(audit.EventRegistrationRejected),
		string(audit.EventPatientUpdated),
		string(audit.EventPatientRemoved),
	}, actions)
}

func TestConcurrentRegistrationsOfOneNumber(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewInMemory())

	const goroutines = 50
	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "John"
			if i%2 == 1 {
				name = "Mary"
			}
			_, err := svc.Register(ctx, models.RegistrationRequest{Name: name, PhoneNumber: "+1 (555) 0100"})
			switch {
			case err == nil:
				successCount.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(goroutines-1), conflictCount.Load())
}

func TestUpdateOntoAnotherPatientsNumber(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewInMemory())

	john, err := svc.Register(ctx, models.RegistrationRequest{Name: "John", PhoneNumber: "911"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, models.RegistrationRequest{Name: "Mary", PhoneNumber: "922"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, john.ID, models.RegistrationRequest{Name: "John", PhoneNumber: "(9)2-2"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	found, err := svc.GetByID(ctx, john.ID)
	require.NoError(t, err)
	assert.Equal(t, "911", found.PhoneNumber, "rejected update leaves the record untouched")
}

func TestCancelledContextIsReported(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	svc := New(timeoutStore{store.NewInMemory()})
	_, err := svc.ListAll(ctx)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// timeoutStore fails every listing with the caller's context error.
type timeoutStore struct {
	*store.InMemory
}

func (s timeoutStore) FindAll(ctx context.Context) ([]*models.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.InMemory.FindAll(ctx)
}
