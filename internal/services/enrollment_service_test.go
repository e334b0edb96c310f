package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
	pkglogger "github.com/phenopolis/twofactor/pkg/logger"
)

func newTestEnrollmentService(repo *MockAccountRepository, gw *MockGateway, notifier *MockNotifier) *EnrollmentService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := pkglogger.NewAuditLogger(logger)
	return NewEnrollmentService(repo, gw, notifier, audit, logger)
}

func TestStartEnrollment(t *testing.T) {
	ctx := context.Background()

	t.Run("registers and stores the device id without enabling", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		var storedDevice string
		enabled := false

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			SetProviderDeviceFunc: func(ctx context.Context, id, deviceID string) error {
				storedDevice = deviceID
				return nil
			},
			EnableSecondFactorFunc: func(ctx context.Context, id string) error {
				enabled = true
				return nil
			},
		}
		gw := &MockGateway{
			EnrollFunc: func(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
				return &gateway.Enrollment{DeviceID: "210"}, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		status, err := svc.Start(ctx, StartEnrollmentInput{
			AccountID:   "acct-1",
			PhoneNumber: "5551234567",
			CountryCode: "1",
		})
		require.NoError(t, err)
		assert.True(t, status.VerificationPending)
		assert.Equal(t, "210", storedDevice)
		assert.False(t, enabled, "enabling must wait for a verified code")
	})

	t.Run("renders a qr code when the provider supplies a provisioning uri", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			EnrollFunc: func(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
				return &gateway.Enrollment{
					DeviceID:        "210",
					ProvisioningURI: "otpauth://totp/Example:user@example.com?secret=ABC",
				}, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		status, err := svc.Start(ctx, StartEnrollmentInput{AccountID: "acct-1"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(status.QRCode, "data:image/png;base64,"))
	})

	t.Run("requires a phone number", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}

		svc := newTestEnrollmentService(repo, &MockGateway{}, &MockNotifier{})

		_, err := svc.Start(ctx, StartEnrollmentInput{AccountID: "acct-1"})
		assert.ErrorIs(t, err, models.ErrBadRequest)
	})

	t.Run("provider outage surfaces", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			EnrollFunc: func(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
				return nil, models.ErrProviderUnavailable
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		_, err := svc.Start(ctx, StartEnrollmentInput{AccountID: "acct-1"})
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	})

	t.Run("phone held by another account is noted, not refused", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		other := NewTestAccount("acct-2", "other@example.com", "Str0ngEnough")
		other.PhoneNumber = "5551234567"

		checkedPhone := ""
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			GetByPhoneNumberFunc: func(ctx context.Context, phoneNumber string) (*models.Account, error) {
				checkedPhone = phoneNumber
				return other, nil
			},
		}

		svc := newTestEnrollmentService(repo, &MockGateway{}, &MockNotifier{})

		status, err := svc.Start(ctx, StartEnrollmentInput{
			AccountID:   "acct-1",
			PhoneNumber: "5551234567",
		})
		require.NoError(t, err)
		assert.True(t, status.VerificationPending)
		assert.Equal(t, "5551234567", checkedPhone)
	})
}

func TestVerifyInstallation(t *testing.T) {
	ctx := context.Background()

	t.Run("approved code enables the second factor", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		account.ProviderDeviceID = "210"
		enabled := false

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			EnableSecondFactorFunc: func(ctx context.Context, id string) error {
				enabled = true
				return nil
			},
		}
		gw := &MockGateway{
			VerifyChallengeFunc: func(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error) {
				return gateway.OutcomeApproved, nil
			},
		}
		notifier := &MockNotifier{}

		svc := newTestEnrollmentService(repo, gw, notifier)

		require.NoError(t, svc.VerifyInstallation(ctx, "acct-1", "123456", "203.0.113.7"))
		assert.True(t, enabled)
		assert.Equal(t, 1, notifier.EnabledSent)
	})

	t.Run("rejected code leaves the factor off", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		account.ProviderDeviceID = "210"
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			EnableSecondFactorFunc: func(ctx context.Context, id string) error {
				t.Fatal("a rejected code must not enable the factor")
				return nil
			},
		}
		gw := &MockGateway{
			VerifyChallengeFunc: func(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error) {
				return gateway.OutcomeRejected, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		err := svc.VerifyInstallation(ctx, "acct-1", "000000", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	})

	t.Run("provider outage leaves the factor off", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		account.ProviderDeviceID = "210"
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			VerifyChallengeFunc: func(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error) {
				return gateway.OutcomeProviderError, models.ErrProviderUnavailable
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		err := svc.VerifyInstallation(ctx, "acct-1", "123456", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	})

	t.Run("nothing enrolled to verify against", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			VerifyChallengeFunc: func(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error) {
				t.Fatal("no provider call without an enrollment")
				return gateway.OutcomeRejected, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		err := svc.VerifyInstallation(ctx, "acct-1", "123456", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrNotEnrolled)
	})

	t.Run("already enabled is a conflict", func(t *testing.T) {
		account := NewTestAccountWithSecondFactor("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}

		svc := newTestEnrollmentService(repo, &MockGateway{}, &MockNotifier{})

		err := svc.VerifyInstallation(ctx, "acct-1", "123456", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestShowInstallation(t *testing.T) {
	ctx := context.Background()

	t.Run("re-serves the qr code for a pending enrollment", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		account.ProviderDeviceID = "210"

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			EnrollFunc: func(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
				return &gateway.Enrollment{
					DeviceID:        "210",
					ProvisioningURI: "otpauth://totp/Example:user@example.com?secret=ABC",
				}, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		status, err := svc.ShowInstallation(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, status.VerificationPending)
		assert.True(t, strings.HasPrefix(status.QRCode, "data:image/png;base64,"))
	})

	t.Run("provider failure still renders the pending state", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			EnrollFunc: func(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
				return nil, models.ErrProviderUnavailable
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		status, err := svc.ShowInstallation(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, status.VerificationPending)
		assert.Empty(t, status.QRCode)
	})

	t.Run("already enabled is a conflict", func(t *testing.T) {
		account := NewTestAccountWithSecondFactor("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}

		svc := newTestEnrollmentService(repo, &MockGateway{}, &MockNotifier{})

		_, err := svc.ShowInstallation(ctx, "acct-1")
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("nothing pending", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}

		svc := newTestEnrollmentService(repo, &MockGateway{}, &MockNotifier{})

		_, err := svc.ShowInstallation(ctx, "acct-1")
		assert.ErrorIs(t, err, models.ErrNotEnrolled)
	})
}

func TestRequestInstallationCode(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to the enrolling account", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		account.ProviderDeviceID = "210"

		sentTo := ""
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			SendChallengeFunc: func(ctx context.Context, account *models.Account) (*gateway.SendResult, error) {
				sentTo = account.PhoneNumber
				return &gateway.SendResult{Sent: true, Message: "Token was sent."}, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		result, err := svc.RequestCode(ctx, "acct-1", "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, result.Sent)
		assert.Equal(t, "5551234567", sentTo)
	})

	t.Run("account without an enrollment", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			SendChallengeFunc: func(ctx context.Context, account *models.Account) (*gateway.SendResult, error) {
				t.Fatal("no send without an enrollment")
				return nil, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		_, err := svc.RequestCode(ctx, "acct-1", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrNotEnrolled)
	})

	t.Run("provider outage surfaces", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.PhoneNumber = "5551234567"
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
		}
		gw := &MockGateway{
			SendChallengeFunc: func(ctx context.Context, account *models.Account) (*gateway.SendResult, error) {
				return nil, models.ErrProviderUnavailable
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		_, err := svc.RequestCode(ctx, "acct-1", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	})
}

func TestDisable(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the registration and clears local state", func(t *testing.T) {
		account := NewTestAccountWithSecondFactor("acct-1", "user@example.com", "Str0ngEnough")
		cleared := false
		var deletedDevice string

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			CountByProviderDeviceIDFunc: func(ctx context.Context, deviceID string) (int, error) {
				return 1, nil
			},
			ClearSecondFactorFunc: func(ctx context.Context, id string) error {
				cleared = true
				return nil
			},
		}
		gw := &MockGateway{
			UnenrollFunc: func(ctx context.Context, deviceID string) (gateway.Outcome, error) {
				deletedDevice = deviceID
				return gateway.OutcomeApproved, nil
			},
		}
		notifier := &MockNotifier{}

		svc := newTestEnrollmentService(repo, gw, notifier)

		require.NoError(t, svc.Disable(ctx, "acct-1", "203.0.113.7"))
		assert.Equal(t, account.ProviderDeviceID, deletedDevice)
		assert.True(t, cleared)
		assert.Equal(t, 1, notifier.DisabledSent)
	})

	t.Run("shared device id skips the provider delete but still clears", func(t *testing.T) {
		account := NewTestAccountWithSecondFactor("acct-1", "user@example.com", "Str0ngEnough")
		cleared := false

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			CountByProviderDeviceIDFunc: func(ctx context.Context, deviceID string) (int, error) {
				return 2, nil
			},
			ClearSecondFactorFunc: func(ctx context.Context, id string) error {
				cleared = true
				return nil
			},
		}
		gw := &MockGateway{
			UnenrollFunc: func(ctx context.Context, deviceID string) (gateway.Outcome, error) {
				t.Fatal("shared registrations must not be deleted provider-side")
				return gateway.OutcomeApproved, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		require.NoError(t, svc.Disable(ctx, "acct-1", "203.0.113.7"))
		assert.True(t, cleared)
	})

	t.Run("provider outage keeps local state enabled", func(t *testing.T) {
		account := NewTestAccountWithSecondFactor("acct-1", "user@example.com", "Str0ngEnough")
		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			CountByProviderDeviceIDFunc: func(ctx context.Context, deviceID string) (int, error) {
				return 1, nil
			},
			ClearSecondFactorFunc: func(ctx context.Context, id string) error {
				t.Fatal("local state must stay enabled when the provider delete fails")
				return nil
			},
		}
		gw := &MockGateway{
			UnenrollFunc: func(ctx context.Context, deviceID string) (gateway.Outcome, error) {
				return gateway.OutcomeProviderError, models.ErrProviderUnavailable
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		err := svc.Disable(ctx, "acct-1", "203.0.113.7")
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	})

	t.Run("no registration clears local state without provider calls", func(t *testing.T) {
		account := NewTestAccount("acct-1", "user@example.com", "Str0ngEnough")
		account.SecondFactorEnabled = true
		cleared := false

		repo := &MockAccountRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
				return account, nil
			},
			ClearSecondFactorFunc: func(ctx context.Context, id string) error {
				cleared = true
				return nil
			},
		}
		gw := &MockGateway{
			UnenrollFunc: func(ctx context.Context, deviceID string) (gateway.Outcome, error) {
				t.Fatal("no provider call expected without a device id")
				return gateway.OutcomeApproved, nil
			},
		}

		svc := newTestEnrollmentService(repo, gw, &MockNotifier{})

		require.NoError(t, svc.Disable(ctx, "acct-1", "203.0.113.7"))
		assert.True(t, cleared)
	})
}
