package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"patientregistry/internal/patient/models"
	"patientregistry/internal/platform/middleware"
	id "patientregistry/pkg/domain"
	dErrors "patientregistry/pkg/domain-errors"
	"patientregistry/pkg/platform/httputil"
)

// Service is the registry surface the HTTP layer calls.
type Service interface {
	ListAll(ctx context.Context) ([]*models.Patient, error)
	GetByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error)
	Register(ctx context.Context, req models.RegistrationRequest) (*models.Patient, error)
	Update(ctx context.Context, patientID id.PatientID, req models.RegistrationRequest) (*models.Patient, error)
	Remove(ctx context.Context, patientID id.PatientID) error
}

// Handler serves the patient endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the patient routes under /api/v1/patients.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/patients", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/create", h.HandleCreate)
		r.Put("/update/{id}", h.HandleUpdate)
		r.Delete("/delete/{id}", h.HandleDelete)
	})
}

// HandleList handles GET /api/v1/patients/.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	patients, err := h.service.ListAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list patients",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponses(patients))
}

// HandleGet handles GET /api/v1/patients/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	patientID, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	p, err := h.service.GetByID(ctx, patientID)
	if err != nil {
		h.logFailure(ctx, "failed to get patient", requestID, patientID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

// HandleCreate handles POST /api/v1/patients/create.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.RegistrationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Register(ctx, *req)
	if err != nil {
		h.logFailure(ctx, "failed to register patient", requestID, "", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "patient created",
		"request_id", requestID,
		"patient_id", p.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

// HandleUpdate handles PUT /api/v1/patients/update/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	patientID, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RegistrationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Update(ctx, patientID, *req)
	if err != nil {
		h.logFailure(ctx, "failed to update patient", requestID, patientID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

// HandleDelete handles DELETE /api/v1/patients/delete/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	patientID, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	if err := h.service.Remove(ctx, patientID); err != nil {
		h.logFailure(ctx, "failed to remove patient", requestID, patientID, err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, requestID string) (id.PatientID, bool) {
	patientID, err := id.ParsePatientID(chi.URLParam(r, "id"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid patient id",
			"request_id", requestID,
			"error", err,
		)
		// no stored record can carry a malformed id
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "patient not found"))
		return "", false
	}
	return patientID, true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, patientID id.PatientID, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"patient_id", patientID,
		"error", err,
	)
}
