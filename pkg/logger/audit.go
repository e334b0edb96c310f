package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is a security-relevant event in the sign-in or enrollment
// flow.
type AuditEvent struct {
	EventType     string
	AccountID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// Audit event types.
const (
	EventPasswordCheck      = "password_check"
	EventSecondFactorCheck  = "second_factor_check"
	EventRememberDeviceUsed = "remember_device_used"
	EventCodeRequested      = "code_requested"
	EventAccountLocked      = "account_locked"
	EventEnrollmentStarted  = "enrollment_started"
	EventEnrollmentVerified = "enrollment_verified"
	EventSecondFactorOff    = "second_factor_disabled"
	EventSignOut            = "sign_out"
)

// AuditLogger emits structured audit records to the application log.
// Failure reasons recorded here are internal; the HTTP layer never
// echoes them back to the client.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "second_factor"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogSecondFactorAttempt records a code verification with its internal
// outcome reason (wrong_code, provider_error, locked).
func (al *AuditLogger) LogSecondFactorAttempt(accountID, ipAddress string, success bool, reason string) {
	al.Log(AuditEvent{
		EventType:     EventSecondFactorCheck,
		AccountID:     accountID,
		IPAddress:     ipAddress,
		Success:       success,
		FailureReason: reason,
	})
}

// LogEnrollmentChange records enable/disable transitions.
func (al *AuditLogger) LogEnrollmentChange(eventType, accountID, ipAddress string, success bool, metadata map[string]string) {
	al.Log(AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		IPAddress: ipAddress,
		Success:   success,
		Metadata:  metadata,
	})
}
