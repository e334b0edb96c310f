package services

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
	pkglogger "github.com/phenopolis/twofactor/pkg/logger"
)

// Notifier sends security notices when the second factor is turned on or
// off. Delivery failures are logged, never surfaced.
type Notifier interface {
	SendSecondFactorEnabled(ctx context.Context, email string) error
	SendSecondFactorDisabled(ctx context.Context, email string) error
}

// EnrollmentService turns the second factor on and off for an account.
// Enrollment is two-step: Start registers with the provider and stores
// the device id, but the factor only becomes required after
// VerifyInstallation proves the account can actually complete a check.
type EnrollmentService struct {
	repo     AccountRepository
	gw       gateway.Gateway
	notifier Notifier
	audit    *pkglogger.AuditLogger
	logger   *slog.Logger
}

func NewEnrollmentService(
	repo AccountRepository,
	gw gateway.Gateway,
	notifier Notifier,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		repo:     repo,
		gw:       gw,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

type StartEnrollmentInput struct {
	AccountID   string
	PhoneNumber string // optional; keeps the stored number when empty
	CountryCode string
	IPAddress   string
}

type EnrollmentStatus struct {
	SecondFactorEnabled bool   `json:"second_factor_enabled"`
	VerificationPending bool   `json:"verification_pending"`
	QRCode              string `json:"qr_code,omitempty"` // PNG data URL
}

// Start registers the account with the provider and stores the returned
// device id. The account is NOT enabled yet; a successful
// VerifyInstallation completes the switch.
func (s *EnrollmentService) Start(ctx context.Context, input StartEnrollmentInput) (*EnrollmentStatus, error) {
	account, err := s.repo.GetByID(ctx, input.AccountID)
	if err != nil {
		s.logger.Error("failed to load account for enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	metadata := map[string]string{}

	if input.PhoneNumber != "" {
		// The legacy provider keys registrations by email and phone, so a
		// number already held by another account will come back with a
		// shared device id. Recorded for the audit trail, not refused.
		if existing, perr := s.repo.GetByPhoneNumber(ctx, input.PhoneNumber); perr == nil && existing.ID != account.ID {
			metadata["shared_phone"] = "true"
			s.logger.Warn("phone number already registered to another account",
				slog.String("account_id", account.ID))
		}

		countryCode := input.CountryCode
		if countryCode == "" {
			countryCode = account.CountryCode
		}
		if err := s.repo.UpdatePhone(ctx, account.ID, input.PhoneNumber, countryCode); err != nil {
			s.logger.Error("failed to update phone number", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		account.PhoneNumber = input.PhoneNumber
		account.CountryCode = countryCode
	}

	if account.PhoneNumber == "" {
		return nil, models.ErrBadRequest
	}

	enrollment, err := s.gw.Enroll(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrProviderUnavailable) {
			return nil, err
		}
		s.logger.Error("enrollment failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if enrollment.DeviceID != "" {
		if err := s.repo.SetProviderDevice(ctx, account.ID, enrollment.DeviceID); err != nil {
			s.logger.Error("failed to store provider device id", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	status := &EnrollmentStatus{
		VerificationPending: true,
		QRCode:              s.qrDataURL(enrollment.ProvisioningURI),
	}

	metadata["phone"] = pkglogger.SanitizedPhone(account.PhoneNumber)
	s.audit.LogEnrollmentChange(pkglogger.EventEnrollmentStarted, account.ID, input.IPAddress, true, metadata)

	return status, nil
}

// qrDataURL renders a provisioning URI as a PNG data URL, or "" when
// there is nothing to render. A render failure degrades the enrollment
// to SMS-only rather than failing it.
func (s *EnrollmentService) qrDataURL(provisioningURI string) string {
	if provisioningURI == "" {
		return ""
	}
	png, err := qrcode.Encode(provisioningURI, qrcode.Medium, 256)
	if err != nil {
		s.logger.Warn("failed to render provisioning qr code", slog.Any("error", err))
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// ShowInstallation reports the pending-installation state so the client
// can render the verification form again after navigating away. For
// providers that support provisioning the QR code is served fresh:
// re-registering a known account hands back the same device id along
// with a new provisioning URI.
func (s *EnrollmentService) ShowInstallation(ctx context.Context, accountID string) (*EnrollmentStatus, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to load account for installation state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.SecondFactorEnabled {
		return nil, models.ErrConflict
	}
	if account.PhoneNumber == "" && account.ProviderDeviceID == "" {
		return nil, models.ErrNotEnrolled
	}

	status := &EnrollmentStatus{VerificationPending: true}

	enrollment, err := s.gw.Enroll(ctx, account)
	if err != nil {
		// The pending state still renders; only the QR refresh is lost.
		s.logger.Warn("could not refresh provider enrollment", slog.Any("error", err))
		return status, nil
	}
	if enrollment.DeviceID != "" && enrollment.DeviceID != account.ProviderDeviceID {
		if err := s.repo.SetProviderDevice(ctx, account.ID, enrollment.DeviceID); err != nil {
			s.logger.Error("failed to store provider device id", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}
	status.QRCode = s.qrDataURL(enrollment.ProvisioningURI)

	return status, nil
}

// RequestCode asks the provider to deliver a code to the signed-in
// account so an enrolling client can complete the installation check.
// The SMS provider only issues codes through this send, which makes it
// the required first step before VerifyInstallation.
func (s *EnrollmentService) RequestCode(ctx context.Context, accountID, ipAddress string) (*gateway.SendResult, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to load account for code request", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.PhoneNumber == "" && account.ProviderDeviceID == "" {
		return nil, models.ErrNotEnrolled
	}

	result, err := s.gw.SendChallenge(ctx, account)
	if err != nil {
		s.audit.Log(pkglogger.AuditEvent{
			EventType: pkglogger.EventCodeRequested,
			AccountID: account.ID,
			IPAddress: ipAddress,
			Success:   false,
		})
		return nil, err
	}

	s.audit.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventCodeRequested,
		AccountID: account.ID,
		IPAddress: ipAddress,
		Success:   result.Sent,
	})

	return result, nil
}

// VerifyInstallation checks the first code after Start and, on success,
// makes the second factor required for future sign-ins.
func (s *EnrollmentService) VerifyInstallation(ctx context.Context, accountID, code, ipAddress string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to load account for installation check", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if account.SecondFactorEnabled {
		return models.ErrConflict
	}
	if account.PhoneNumber == "" && account.ProviderDeviceID == "" {
		return models.ErrNotEnrolled
	}

	outcome, verr := s.gw.VerifyChallenge(ctx, account, code)
	switch outcome {
	case gateway.OutcomeApproved:
		// fall through below
	case gateway.OutcomeProviderError:
		s.logger.Error("installation check provider error", slog.Any("error", verr))
		return models.ErrProviderUnavailable
	default:
		s.audit.LogEnrollmentChange(pkglogger.EventEnrollmentVerified, account.ID, ipAddress, false, nil)
		return models.ErrInvalidCode
	}

	if err := s.repo.EnableSecondFactor(ctx, account.ID); err != nil {
		s.logger.Error("failed to enable second factor", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.repo.TouchSecondFactorSuccess(ctx, account.ID); err != nil {
		s.logger.Error("failed to stamp second-factor success", slog.Any("error", err))
	}

	if err := s.notifier.SendSecondFactorEnabled(ctx, account.Email); err != nil {
		s.logger.Error("failed to send enable notice", slog.Any("error", err))
	}

	s.audit.LogEnrollmentChange(pkglogger.EventEnrollmentVerified, account.ID, ipAddress, true, nil)
	s.logger.Info("second factor enabled", slog.String("account_id", account.ID))

	return nil
}

// Disable turns the second factor off. When the provider registration is
// shared with another account the provider-side delete is skipped and
// only local state is cleared; when the delete is attempted and the
// provider refuses or is down, local state is left untouched so the two
// never disagree about an active registration.
func (s *EnrollmentService) Disable(ctx context.Context, accountID, ipAddress string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to load account for disable", slog.Any("error", err))
		return models.ErrInternalServer
	}

	metadata := map[string]string{}

	if account.ProviderDeviceID != "" {
		count, err := s.repo.CountByProviderDeviceID(ctx, account.ProviderDeviceID)
		if err != nil {
			s.logger.Error("failed to check for shared device id", slog.Any("error", err))
			return models.ErrInternalServer
		}

		if count > 1 {
			s.logger.Warn("skipping provider delete for shared device id",
				slog.String("account_id", account.ID),
				slog.Any("error", models.ErrSharedDeviceConflict))
			metadata["shared_device"] = "true"
		} else {
			outcome, derr := s.gw.Unenroll(ctx, account.ProviderDeviceID)
			switch outcome {
			case gateway.OutcomeApproved:
				// proceed to clear local state
			case gateway.OutcomeProviderError:
				s.logger.Error("provider delete failed", slog.Any("error", derr))
				return models.ErrProviderUnavailable
			default:
				s.logger.Error("provider refused registration delete",
					slog.String("account_id", account.ID))
				return models.ErrConflict
			}
		}
	}

	if err := s.repo.ClearSecondFactor(ctx, account.ID); err != nil {
		s.logger.Error("failed to clear second factor", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.notifier.SendSecondFactorDisabled(ctx, account.Email); err != nil {
		s.logger.Error("failed to send disable notice", slog.Any("error", err))
	}

	s.audit.LogEnrollmentChange(pkglogger.EventSecondFactorOff, account.ID, ipAddress, true, metadata)
	s.logger.Info("second factor disabled", slog.String("account_id", account.ID))

	return nil
}

// Status reports the enrollment state for the settings page.
func (s *EnrollmentService) Status(ctx context.Context, accountID string) (*EnrollmentStatus, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	return &EnrollmentStatus{
		SecondFactorEnabled: account.SecondFactorEnabled,
		VerificationPending: !account.SecondFactorEnabled && account.ProviderDeviceID != "",
	}, nil
}
