package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"patientregistry/internal/patient/metrics"
	"patientregistry/internal/patient/models"
	"patientregistry/internal/patient/phone"
	id "patientregistry/pkg/domain"
	dErrors "patientregistry/pkg/domain-errors"
	"patientregistry/pkg/platform/audit"
	"patientregistry/pkg/platform/sentinel"
	"patientregistry/pkg/requestcontext"
)

const tracerName = "patientregistry/internal/patient/service"

// Conflict messages surfaced to clients.
const (
	msgInvalidPhone      = "phone number is not valid"
	msgAlreadyRegistered = "patient already registered"
	msgPhoneTaken        = "phone number already taken"
	msgNotFound          = "patient not found"
)

// Store is the persistence contract of the registry. Lookups by phone number
// compare normalized numbers. Save inserts when the ID is empty and replaces
// otherwise.
type Store interface {
	FindAll(ctx context.Context) ([]*models.Patient, error)
	FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error)
	ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error)
	FindByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Patient, error)
	Save(ctx context.Context, patient *models.Patient) (*models.Patient, error)
	DeleteByID(ctx context.Context, patientID id.PatientID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the patient registry. It is the only component that mutates
// patient records.
type Service struct {
	store          Store
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
	locks          *phoneLocks
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		locks:  &phoneLocks{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAll returns every patient in store order.
func (s *Service) ListAll(ctx context.Context) ([]*models.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.ListAll")
	defer span.End()
	defer s.observe("list", time.Now())

	patients, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, s.fail(span, translateStoreErr(ctx, err, "failed to list patients"))
	}
	span.SetAttributes(attribute.Int("patient.count", len(patients)))
	return patients, nil
}

// GetByID returns the patient or a not-found error.
func (s *Service) GetByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.GetByID",
		trace.WithAttributes(attribute.String("patient.id", patientID.String())))
	defer span.End()
	defer s.observe("get", time.Now())

	p, err := s.getByID(ctx, patientID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return p, nil
}

// Register creates a patient unless the phone number is invalid or already
// belongs to someone. The conflict message tells a repeated registration of
// the same patient apart from a number owned by another patient.
func (s *Service) Register(ctx context.Context, req models.RegistrationRequest) (*models.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.Register")
	defer span.End()
	defer s.observe("register", time.Now())

	if !phone.IsValid(req.PhoneNumber) {
		s.rejectInvalidPhone(ctx, audit.EventRegistrationRejected, "")
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, msgInvalidPhone))
	}

	unlock := s.locks.lock(phone.Normalize(req.PhoneNumber))
	defer unlock()

	exists, err := s.store.ExistsByPhoneNumber(ctx, req.PhoneNumber)
	if err != nil {
		return nil, s.fail(span, translateStoreErr(ctx, err, "failed to check phone number"))
	}
	if exists {
		holder, err := s.store.FindByPhoneNumber(ctx, req.PhoneNumber)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// removed between the two lookups; the number is free again
				return s.insert(ctx, span, req)
			}
			return nil, s.fail(span, translateStoreErr(ctx, err, "failed to load phone number holder"))
		}
		if holder.Name == req.Name {
			s.rejectConflict(ctx, audit.EventRegistrationRejected, holder.ID, "already_registered")
			return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, msgAlreadyRegistered))
		}
		s.rejectConflict(ctx, audit.EventRegistrationRejected, "", "phone_taken")
		return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, msgPhoneTaken))
	}

	return s.insert(ctx, span, req)
}

func (s *Service) insert(ctx context.Context, span trace.Span, req models.RegistrationRequest) (*models.Patient, error) {
	p, err := models.NewPatient(req, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.fail(span, invariantToValidation(err))
	}

	saved, err := s.store.Save(ctx, p)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.rejectConflict(ctx, audit.EventRegistrationRejected, "", "phone_taken")
			return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, msgPhoneTaken))
		}
		return nil, s.fail(span, translateStoreErr(ctx, err, "failed to save patient"))
	}

	span.SetAttributes(attribute.String("patient.id", saved.ID.String()))
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
	s.logger.InfoContext(ctx, "patient registered",
		"request_id", requestcontext.RequestID(ctx),
		"patient_id", saved.ID,
	)
	s.emit(ctx, audit.Event{
		PatientID: saved.ID.String(),
		Action:    string(audit.EventPatientRegistered),
		Decision:  "granted",
	})
	return saved, nil
}

// Update replaces name, phone number and email of an existing patient. The new
// phone number is validated and must not belong to a different patient.
func (s *Service) Update(ctx context.Context, patientID id.PatientID, req models.RegistrationRequest) (*models.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.Update",
		trace.WithAttributes(attribute.String("patient.id", patientID.String())))
	defer span.End()
	defer s.observe("update", time.Now())

	current, err := s.getByID(ctx, patientID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	if !phone.IsValid(req.PhoneNumber) {
		s.rejectInvalidPhone(ctx, audit.EventUpdateRejected, patientID)
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, msgInvalidPhone))
	}

	unlock := s.locks.lock(phone.Normalize(req.PhoneNumber))
	defer unlock()

	holder, err := s.store.FindByPhoneNumber(ctx, req.PhoneNumber)
	switch {
	case err == nil && holder.ID != current.ID:
		s.rejectConflict(ctx, audit.EventUpdateRejected, patientID, "phone_taken")
		return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, msgPhoneTaken))
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, s.fail(span, translateStoreErr(ctx, err, "failed to check phone number"))
	}

	if err := current.Apply(req, requestcontext.Now(ctx)); err != nil {
		return nil, s.fail(span, invariantToValidation(err))
	}

	saved, err := s.store.Save(ctx, current)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.rejectConflict(ctx, audit.EventUpdateRejected, patientID, "phone_taken")
			return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, msgPhoneTaken))
		}
		return nil, s.fail(span, translateStoreErr(ctx, err, "failed to save patient"))
	}

	s.logger.InfoContext(ctx, "patient updated",
		"request_id", requestcontext.RequestID(ctx),
		"patient_id", saved.ID,
	)
	s.emit(ctx, audit.Event{
		PatientID: saved.ID.String(),
		Action:    string(audit.EventPatientUpdated),
		Decision:  "granted",
	})
	return saved, nil
}

// Remove deletes an existing patient. Removing an unknown id is not-found.
func (s *Service) Remove(ctx context.Context, patientID id.PatientID) error {
	ctx, span := s.tracer.Start(ctx, "patient.Remove",
		trace.WithAttributes(attribute.String("patient.id", patientID.String())))
	defer span.End()
	defer s.observe("remove", time.Now())

	if _, err := s.getByID(ctx, patientID); err != nil {
		return s.fail(span, err)
	}
	if err := s.store.DeleteByID(ctx, patientID); err != nil {
		return s.fail(span, translateStoreErr(ctx, err, "failed to delete patient"))
	}

	s.logger.InfoContext(ctx, "patient removed",
		"request_id", requestcontext.RequestID(ctx),
		"patient_id", patientID,
	)
	s.emit(ctx, audit.Event{
		PatientID: patientID.String(),
		Action:    string(audit.EventPatientRemoved),
		Decision:  "granted",
	})
	return nil
}

func (s *Service) getByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	p, err := s.store.FindByID(ctx, patientID)
	if err != nil {
		return nil, translateStoreErr(ctx, err, "failed to load patient")
	}
	return p, nil
}

func (s *Service) rejectInvalidPhone(ctx context.Context, action audit.AuditEvent, patientID id.PatientID) {
	if s.metrics != nil {
		s.metrics.IncrementInvalidPhone()
	}
	s.logger.WarnContext(ctx, "invalid phone number rejected",
		"request_id", requestcontext.RequestID(ctx),
		"action", action,
	)
	s.emit(ctx, audit.Event{
		PatientID: patientID.String(),
		Action:    string(action),
		Decision:  "denied",
		Reason:    "invalid_phone",
	})
}

func (s *Service) rejectConflict(ctx context.Context, action audit.AuditEvent, patientID id.PatientID, reason string) {
	if s.metrics != nil {
		s.metrics.IncrementConflict(reason)
	}
	s.logger.InfoContext(ctx, "phone number conflict",
		"request_id", requestcontext.RequestID(ctx),
		"action", action,
		"reason", reason,
	)
	s.emit(ctx, audit.Event{
		PatientID: patientID.String(),
		Action:    string(action),
		Decision:  "denied",
		Reason:    reason,
	})
}

// emit never fails the calling operation.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		span.RecordError(err)
	}
	return err
}

// translateStoreErr maps store sentinels and context errors onto coded errors.
func translateStoreErr(ctx context.Context, err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, msgNotFound)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func invariantToValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
