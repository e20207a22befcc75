package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor lacks a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or expired login.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream indicates a failure in a remote dependency.
	ErrUpstream = errors.New("upstream failure")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRegistrationClosed is returned when sign-ups are disabled.
	ErrRegistrationClosed = errors.New("registration closed")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
