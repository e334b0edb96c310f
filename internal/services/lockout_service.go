package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/phenopolis/twofactor/internal/models"
)

// AccountRepository defines the persistence operations the services need.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdatePhone(ctx context.Context, id, phoneNumber, countryCode string) error
	SetProviderDevice(ctx context.Context, id, deviceID string) error
	EnableSecondFactor(ctx context.Context, id string) error
	ClearSecondFactor(ctx context.Context, id string) error
	TouchSecondFactorSuccess(ctx context.Context, id string) error
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	LockUntil(ctx context.Context, id string, until time.Time) error
	CountByProviderDeviceID(ctx context.Context, deviceID string) (int, error)
}

// LockoutConfig controls the consecutive-failure lock. MaxFails <= 0
// disables locking entirely.
type LockoutConfig struct {
	MaxFails        int
	LockoutDuration time.Duration
}

// LockoutService counts rejected verification codes and locks accounts
// that exhaust the allowance. Provider outages never reach this service:
// only genuine wrong-code rejections count.
type LockoutService struct {
	repo   AccountRepository
	logger *slog.Logger
	config LockoutConfig
}

func NewLockoutService(repo AccountRepository, logger *slog.Logger, config LockoutConfig) *LockoutService {
	return &LockoutService{repo: repo, logger: logger, config: config}
}

// ReportFailure records one rejected code. Returns true when this
// failure crossed the threshold and the account is now locked. The
// increment is a single atomic statement in the repository, so
// concurrent failures cannot under-count.
func (s *LockoutService) ReportFailure(ctx context.Context, accountID string) (bool, error) {
	count, err := s.repo.IncrementFailedAttempts(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to record rejected code", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if s.config.MaxFails <= 0 || count < s.config.MaxFails {
		return false, nil
	}

	until := time.Now().Add(s.config.LockoutDuration)
	if err := s.repo.LockUntil(ctx, accountID, until); err != nil {
		s.logger.Error("failed to lock account", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	s.logger.Warn("account locked after repeated failed codes",
		slog.String("account_id", accountID),
		slog.Int("failed_attempts", count))

	return true, nil
}
