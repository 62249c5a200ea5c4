package domain

import "errors"

var (
	// ErrValidation marks caller errors: malformed input, unknown identifiers.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks writes rejected because of the current record state.
	ErrConflict = errors.New("conflict")

	// ErrConfig marks deployment defects such as missing channel credentials.
	// It is loud on purpose: it should page operators, not be swallowed.
	ErrConfig = errors.New("configuration error")
)
