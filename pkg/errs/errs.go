package errs

import "errors"

var (
	// ErrExternalService marks failures of embedding, generation, or other
	// upstream API calls.
	ErrExternalService = errors.New("external service error")

	// ErrNotFound marks lookups of unknown job ids or empty sources.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed request payloads or parameters.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks webhook secret mismatches.
	ErrAuth = errors.New("authentication error")
)
