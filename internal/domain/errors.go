package domain

import "errors"

var (
	// ErrInvalidCompletion indicates caller-supplied completion input is malformed
	// (wrong answer-array length, empty date). Never persisted.
	ErrInvalidCompletion = errors.New("invalid completion input")
	// ErrProfileNotFound is returned when no profile document exists for a user.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrNoPendingCompletion indicates an attach was requested with nothing held.
	ErrNoPendingCompletion = errors.New("no pending completion for session")
)
