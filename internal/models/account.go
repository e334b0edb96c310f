package models

import (
	"time"
)

// Account is a user record extended with second-factor state. The
// provider device id is whatever identifier the verification provider
// handed back at enrollment; it is opaque to this service.
type Account struct {
	ID                  string
	Email               string
	PasswordHash        string
	PhoneNumber         string
	CountryCode         string
	SecondFactorEnabled bool
	ProviderDeviceID    string
	LastSecondFactorAt  *time.Time
	FailedAttempts      int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SecondFactorRequired reports whether sign-in must go through the
// code-verification step: the account opted in AND still has a way to
// receive codes. An enabled account whose phone and registration were
// wiped out-of-band falls back to password-only rather than locking the
// holder out.
func (a *Account) SecondFactorRequired() bool {
	return a.SecondFactorEnabled && (a.PhoneNumber != "" || a.ProviderDeviceID != "")
}

// Locked reports whether the account is inside a lockout window. A nil
// LockedUntil means the account has never been locked or the lock was
// cleared by a successful verification.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
