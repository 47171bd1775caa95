// Package domain holds identifier types shared across layers.
package domain

import (
	"unicode/utf8"

	dErrors "patientregistry/pkg/domain-errors"
)

// maxPatientIDLength covers both UUIDs (36) and Mongo ObjectID hex (24) with room
// for other store-assigned schemes.
const maxPatientIDLength = 64

// PatientID is the opaque, store-assigned identifier of a patient record.
// Memory and Postgres stores issue UUIDs; the Mongo store issues ObjectID hex.
type PatientID string

func (p PatientID) String() string {
	return string(p)
}

// IsZero reports whether the id was never assigned.
func (p PatientID) IsZero() bool {
	return p == ""
}

// ParsePatientID validates an identifier received at a trust boundary.
// Only ASCII letters, digits, '-' and '_' are accepted.
func ParsePatientID(raw string) (PatientID, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "patient id is required")
	}
	if len(raw) > maxPatientIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "patient id is too long")
	}
	if !utf8.ValidString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "patient id must be valid UTF-8")
	}
	for i := 0; i < len(raw); i++ {
		if !isIDChar(raw[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "patient id contains invalid characters")
		}
	}
	return PatientID(raw), nil
}

func isIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_':
		return true
	}
	return false
}
