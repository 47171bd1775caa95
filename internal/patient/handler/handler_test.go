package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"patientregistry/internal/patient/handler/mocks"
	"patientregistry/internal/patient/models"
	id "patientregistry/pkg/domain"
	dErrors "patientregistry/pkg/domain-errors"
	"patientregistry/pkg/requestcontext"
	"patientregistry/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service
type PatientHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestPatientHandlerSuite(t *testing.T) {
	suite.Run(t, new(PatientHandlerSuite))
}

func (s *PatientHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
}

func john() *models.Patient {
	return &models.Patient{ID: "p-1", Name: "John", PhoneNumber: "(611)67-890", Email: "john@x.com"}
}

func (s *PatientHandlerSuite) TestList() {
	s.service.EXPECT().ListAll(gomock.Any()).Return([]*models.Patient{john()}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/"))

	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[[]PatientResponse](s.T(), rr)
	s.Require().Len(*got, 1)
	s.Equal(PatientResponse{ID: "p-1", Name: "John", PhoneNumber: "(611)67-890", Email: "john@x.com"}, (*got)[0])
}

func (s *PatientHandlerSuite) TestListEmptyIsArray() {
	s.service.EXPECT().ListAll(gomock.Any()).Return(nil, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/"))

	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *PatientHandlerSuite) TestGet() {
	s.Run("found", func() {
		s.service.EXPECT().GetByID(gomock.Any(), id.PatientID("p-1")).Return(john(), nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/p-1"))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"id":"p-1","name":"John","phoneNumber":"(611)67-890","email":"john@x.com"}`, rr.Body.String())
	})

	s.Run("not found", func() {
		s.service.EXPECT().GetByID(gomock.Any(), id.PatientID("nope")).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "patient not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/nope"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id is not found without reaching the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/bad%20id"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *PatientHandlerSuite) TestCreate() {
	s.Run("created with trimmed fields", func() {
		s.service.EXPECT().Register(gomock.Any(), models.RegistrationRequest{
			Name: "John", PhoneNumber: "(611)67-890", Email: "john@x.com",
		}).Return(john(), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/patients/create",
			map[string]string{"name": " John ", "phoneNumber": "(611)67-890", "email": "john@x.com "})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertPatient(s.T(), rr, testutil.PatientBody{
			ID: "p-1", Name: "John", PhoneNumber: "(611)67-890", Email: "john@x.com",
		})
	})

	s.Run("request scope reaches the service", func() {
		pinned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ models.RegistrationRequest) (*models.Patient, error) {
				s.Equal("req-9", requestcontext.RequestID(ctx))
				s.Equal(pinned, requestcontext.Now(ctx))
				return john(), nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/patients/create",
			map[string]string{"name": "John", "phoneNumber": "911"})
		req = testutil.WithRequestTime(testutil.WithRequestID(req, "req-9"), pinned)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("phone number reaches the service untrimmed", func() {
		s.service.EXPECT().Register(gomock.Any(), models.RegistrationRequest{
			Name: "John", PhoneNumber: "911\t",
		}).Return(nil, dErrors.New(dErrors.CodeValidation, "phone number is not valid"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/patients/create",
			map[string]string{"name": "John", "phoneNumber": "911\t"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/v1/patients/create", `{"name":`)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("conflict carries its message", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "phone number already taken"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/patients/create",
			map[string]string{"name": "Mary", "phoneNumber": "(611)67-890"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		body := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal("conflict", body["error"])
		s.Equal("phone number already taken", body["error_description"])
	})

	s.Run("invalid phone", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "phone number is not valid"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/patients/create",
			map[string]string{"name": "Mary", "phoneNumber": "12"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *PatientHandlerSuite) TestUpdate() {
	s.Run("ok", func() {
		updated := john()
		updated.Name = "New John"
		s.service.EXPECT().Update(gomock.Any(), id.PatientID("p-1"), models.RegistrationRequest{
			Name: "New John", PhoneNumber: "(611)67-890", Email: "john@x.com",
		}).Return(updated, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/v1/patients/update/p-1",
			map[string]string{"name": "New John", "phoneNumber": "(611)67-890", "email": "john@x.com"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "name", "New John")
	})

	s.Run("not found", func() {
		s.service.EXPECT().Update(gomock.Any(), id.PatientID("missing"), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "patient not found"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/v1/patients/update/missing",
			map[string]string{"name": "x", "phoneNumber": "911"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
	s.Run("malformed id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/v1/patients/update/p.1",
			map[string]string{"name": "x", "phoneNumber": "911"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *PatientHandlerSuite) TestDelete() {
	s.Run("no content", func() {
		s.service.EXPECT().Remove(gomock.Any(), id.PatientID("p-1")).Return(nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/api/v1/patients/delete/p-1"))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
		s.Empty(rr.Body.String())
	})

	s.Run("malformed id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/api/v1/patients/delete/p%2B1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("internal errors hide details", func() {
		s.service.EXPECT().Remove(gomock.Any(), id.PatientID("p-1")).
			Return(dErrors.Wrap(context.Canceled, dErrors.CodeInternal, "failed to delete patient"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/api/v1/patients/delete/p-1"))
		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
		body := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal("internal_error", body["error"])
		s.NotContains(body, "error_description")
	})

	s.Run("timeout", func() {
		s.service.EXPECT().Remove(gomock.Any(), gomock.Any()).
			Return(dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeTimeout, "request timed out"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/api/v1/patients/delete/p-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusGatewayTimeout, "timeout")
	})
}
