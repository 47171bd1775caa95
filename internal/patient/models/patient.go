package models

import (
	"strings"
	"time"

	id "patientregistry/pkg/domain"
	dErrors "patientregistry/pkg/domain-errors"
)

// Patient is a registered patient contact record.
//
// Invariants:
//   - ID is assigned by the store on first save and never changes
//   - Name is non-empty
//   - at most one Patient exists per normalized PhoneNumber (enforced by the
//     registry and backed by a unique index in every store)
//
// PhoneNumber keeps the raw input; comparisons go through phone.Normalize.
type Patient struct {
	ID          id.PatientID `json:"id"`
	Name        string       `json:"name"`
	PhoneNumber string       `json:"phoneNumber"`
	Email       string       `json:"email"`
	CreatedAt   time.Time    `json:"-"`
	UpdatedAt   time.Time    `json:"-"`
}

// RegistrationRequest carries the client-supplied fields for create and update.
type RegistrationRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

// Normalize trims surrounding whitespace from name and email. The phone number
// is left raw so that stray characters still fail validation.
func (r *RegistrationRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
}

// NewPatient builds an unsaved record from a request. The store assigns the ID.
func NewPatient(req RegistrationRequest, now time.Time) (*Patient, error) {
	if req.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient name cannot be empty")
	}
	return &Patient{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Apply replaces every non-identity field with the request's values.
func (p *Patient) Apply(req RegistrationRequest, now time.Time) error {
	if req.Name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "patient name cannot be empty")
	}
	p.Name = req.Name
	p.PhoneNumber = req.PhoneNumber
	p.Email = req.Email
	p.UpdatedAt = now
	return nil
}

// Clone returns a copy that callers may mutate without touching store state.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
