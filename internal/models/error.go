package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Gatekeeper outcomes surfaced as errors at the HTTP boundary
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrSessionExpired    = errors.New("session expired")
)
