package domain

import "errors"

var (
	// ErrValidation marks caller mistakes surfaced synchronously at intake.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for rows that do not exist or are no longer actionable.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks duplicate idempotency keys and lost status races.
	ErrConflict = errors.New("conflict")
	// ErrConfiguration marks missing or ambiguous provider configuration.
	ErrConfiguration = errors.New("configuration error")
)
