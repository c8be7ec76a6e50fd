// Package apperr defines the failure taxonomy shared by the services and
// mapped to HTTP status codes by the API layer.
package apperr

import "errors"

var (
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing milestone, contract, project, bid or user.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a role or ownership violation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition marks a status change that is not the legal next
	// step, including updates that lost a race to a concurrent transition.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict marks a uniqueness violation such as a taken email.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized marks bad credentials.
	ErrUnauthorized = errors.New("unauthorized")
)
