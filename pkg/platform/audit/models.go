package audit

import (
	"context"
	"time"
)

// Event is emitted by the patient registry to capture lifecycle actions. Keep it
// transport-agnostic so stores and sinks can fan out. Events never carry the
// patient's name, phone number or email.
type Event struct {
	Timestamp time.Time
	PatientID string
	Action    string
	Decision  string
	Reason    string
	RequestID string
}

// AuditEvent names a lifecycle action.
type AuditEvent string

const (
	EventPatientRegistered    AuditEvent = "patient_registered"
	EventPatientUpdated       AuditEvent = "patient_updated"
	EventPatientRemoved       AuditEvent = "patient_removed"
	EventRegistrationRejected AuditEvent = "registration_rejected"
	EventUpdateRejected       AuditEvent = "update_rejected"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
