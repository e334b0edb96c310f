package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard API error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`             // machine-readable code
	Message string `json:"message"`           // human-readable message
	Details string `json:"details,omitempty"` // optional context
}

func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

// WriteLocked reports a temporarily locked account without revealing when
// the lock expires.
func WriteLocked(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, "account_locked", "Your account has been locked.")
}

// WriteNoActiveAttempt is used whenever a second-factor endpoint is hit
// without a password-verified login in progress.
func WriteNoActiveAttempt(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "no_active_attempt", "Please sign in first.")
}

// WriteVerificationFailed is the single response body for every failed
// code check. Wrong codes and provider outages must be indistinguishable
// here so the endpoint cannot be used as an oracle.
func WriteVerificationFailed(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "verification_failed", "Verification failed. Please try again.")
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
