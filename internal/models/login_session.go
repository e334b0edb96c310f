package models

import "time"

// LoginSession tracks a single sign-in attempt between the password
// check and the second-factor check. It is keyed by an opaque token the
// client carries in a cookie; the session itself never leaves the
// server.
type LoginSession struct {
	AccountID           string
	PasswordChecked     bool
	SecondFactorChecked bool
	RememberMe          bool
	ReturnTo            string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}
