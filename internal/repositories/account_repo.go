package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/phenopolis/twofactor/internal/database"
	"github.com/phenopolis/twofactor/internal/models"
)

type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `id, email, password_hash, phone_number, country_code,
	second_factor_enabled, provider_device_id, last_second_factor_at,
	failed_second_factor_attempts, locked_until, created_at, updated_at`

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var lastSecondFactorAt, lockedUntil *time.Time

	err := scanner.Scan(
		&account.ID, &account.Email, &account.PasswordHash,
		&account.PhoneNumber, &account.CountryCode,
		&account.SecondFactorEnabled, &account.ProviderDeviceID,
		&lastSecondFactorAt, &account.FailedAttempts, &lockedUntil,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.LastSecondFactorAt = lastSecondFactorAt
	account.LockedUntil = lockedUntil

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE phone_number = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, phoneNumber))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.CountryCode == "" {
		account.CountryCode = "1"
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, phone_number, country_code,
			second_factor_enabled, provider_device_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		account.ID, account.Email, account.PasswordHash,
		account.PhoneNumber, account.CountryCode,
		account.SecondFactorEnabled, account.ProviderDeviceID,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return account, nil
}

func (r *AccountRepository) UpdatePhone(ctx context.Context, id, phoneNumber, countryCode string) error {
	query := `
		UPDATE accounts SET phone_number = $2, country_code = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, phoneNumber, countryCode)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetProviderDevice stores the provider-issued device id without enabling
// the second factor; enabling waits for a successful verification
// round-trip. Re-enrollment replaces any previous device id.
func (r *AccountRepository) SetProviderDevice(ctx context.Context, id, deviceID string) error {
	query := `
		UPDATE accounts SET provider_device_id = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, deviceID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) EnableSecondFactor(ctx context.Context, id string) error {
	query := `
		UPDATE accounts SET second_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearSecondFactor turns the factor off and discards any login attempt
// parked at the code step, in one transaction: an attempt that was
// waiting on a code the account can no longer produce must not outlive
// the disable.
func (r *AccountRepository) ClearSecondFactor(ctx context.Context, id string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE accounts
			SET second_factor_enabled = FALSE, provider_device_id = '', updated_at = NOW()
			WHERE id = $1
		`
		tag, err := tx.Exec(ctx, query, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM login_sessions WHERE account_id = $1`, id); err != nil {
			return database.MapPostgresError(err)
		}
		return nil
	})
}

// TouchSecondFactorSuccess stamps the success time and resets the
// consecutive failure counter in one statement.
func (r *AccountRepository) TouchSecondFactorSuccess(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET last_second_factor_at = NOW(), failed_second_factor_attempts = 0,
			locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementFailedAttempts is a single-statement read-modify-write so two
// concurrent rejected attempts cannot under-count toward the lockout
// threshold. Returns the counter value after the increment.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET failed_second_factor_attempts = failed_second_factor_attempts + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_second_factor_attempts
	`
	var count int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func (r *AccountRepository) LockUntil(ctx context.Context, id string, until time.Time) error {
	query := `UPDATE accounts SET locked_until = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, until)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountByProviderDeviceID reports how many accounts reference the given
// provider device id. Used by the disable flow to detect shared device
// registrations before deleting them provider-side.
func (r *AccountRepository) CountByProviderDeviceID(ctx context.Context, deviceID string) (int, error) {
	if deviceID == "" {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM accounts WHERE provider_device_id = $1`
	var count int
	if err := r.db.Pool.QueryRow(ctx, query, deviceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts by device id: %w", err)
	}
	return count, nil
}
