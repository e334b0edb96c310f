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

	// Second-factor flow errors
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrProviderUnavailable = errors.New("verification provider unavailable")
	ErrNotEnrolled         = errors.New("second factor not enrolled")
	ErrNoActiveAttempt     = errors.New("no login attempt in progress")
	ErrAccountLocked       = errors.New("account is temporarily locked")

	// Recorded when a disable skips the provider-side delete because
	// another account references the same provider device id. Never
	// surfaced to the user.
	ErrSharedDeviceConflict = errors.New("provider device id shared by another account")
)
