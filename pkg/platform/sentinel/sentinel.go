package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Patient stores return these so the
// registry can translate them into domain errors.
//
//   - ErrNotFound: no record for the requested id or phone number
//   - ErrAlreadyUsed: the normalized phone number is held by another record
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
)
