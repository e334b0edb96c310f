package services

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByIDFunc                  func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc               func(ctx context.Context, email string) (*models.Account, error)
	GetByPhoneNumberFunc         func(ctx context.Context, phoneNumber string) (*models.Account, error)
	CreateFunc                   func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdatePhoneFunc              func(ctx context.Context, id, phoneNumber, countryCode string) error
	SetProviderDeviceFunc        func(ctx context.Context, id, deviceID string) error
	EnableSecondFactorFunc       func(ctx context.Context, id string) error
	ClearSecondFactorFunc        func(ctx context.Context, id string) error
	TouchSecondFactorSuccessFunc func(ctx context.Context, id string) error
	IncrementFailedAttemptsFunc  func(ctx context.Context, id string) (int, error)
	LockUntilFunc                func(ctx context.Context, id string, until time.Time) error
	CountByProviderDeviceIDFunc  func(ctx context.Context, deviceID string) (int, error)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Account, error) {
	if m.GetByPhoneNumberFunc != nil {
		return m.GetByPhoneNumberFunc(ctx, phoneNumber)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return account, nil
}

func (m *MockAccountRepository) UpdatePhone(ctx context.Context, id, phoneNumber, countryCode string) error {
	if m.UpdatePhoneFunc != nil {
		return m.UpdatePhoneFunc(ctx, id, phoneNumber, countryCode)
	}
	return nil
}

func (m *MockAccountRepository) SetProviderDevice(ctx context.Context, id, deviceID string) error {
	if m.SetProviderDeviceFunc != nil {
		return m.SetProviderDeviceFunc(ctx, id, deviceID)
	}
	return nil
}

func (m *MockAccountRepository) EnableSecondFactor(ctx context.Context, id string) error {
	if m.EnableSecondFactorFunc != nil {
		return m.EnableSecondFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) ClearSecondFactor(ctx context.Context, id string) error {
	if m.ClearSecondFactorFunc != nil {
		return m.ClearSecondFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) TouchSecondFactorSuccess(ctx context.Context, id string) error {
	if m.TouchSecondFactorSuccessFunc != nil {
		return m.TouchSecondFactorSuccessFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockAccountRepository) LockUntil(ctx context.Context, id string, until time.Time) error {
	if m.LockUntilFunc != nil {
		return m.LockUntilFunc(ctx, id, until)
	}
	return nil
}

func (m *MockAccountRepository) CountByProviderDeviceID(ctx context.Context, deviceID string) (int, error) {
	if m.CountByProviderDeviceIDFunc != nil {
		return m.CountByProviderDeviceIDFunc(ctx, deviceID)
	}
	return 1, nil
}

// MockAttemptTracker implements AttemptTracker for testing
type MockAttemptTracker struct {
	BeginAttemptFunc            func(ctx context.Context, accountID string, rememberMe bool, returnTo string) (string, error)
	CurrentFunc                 func(ctx context.Context, token string) (*models.LoginSession, error)
	MarkSecondFactorCheckedFunc func(ctx context.Context, token string) error
	ClearFunc                   func(ctx context.Context, token string) error
}

func (m *MockAttemptTracker) BeginAttempt(ctx context.Context, accountID string, rememberMe bool, returnTo string) (string, error) {
	if m.BeginAttemptFunc != nil {
		return m.BeginAttemptFunc(ctx, accountID, rememberMe, returnTo)
	}
	return "attempt_" + accountID, nil
}

func (m *MockAttemptTracker) Current(ctx context.Context, token string) (*models.LoginSession, error) {
	if m.CurrentFunc != nil {
		return m.CurrentFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockAttemptTracker) MarkSecondFactorChecked(ctx context.Context, token string) error {
	if m.MarkSecondFactorCheckedFunc != nil {
		return m.MarkSecondFactorCheckedFunc(ctx, token)
	}
	return nil
}

func (m *MockAttemptTracker) Clear(ctx context.Context, token string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, token)
	}
	return nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	EstablishSessionFunc    func(accountID string, rememberMe bool) (string, error)
	IssueRememberTokenFunc  func(accountID string) (string, error)
	VerifyRememberTokenFunc func(token string) (string, bool)
}

func (m *MockTokenIssuer) EstablishSession(accountID string, rememberMe bool) (string, error) {
	if m.EstablishSessionFunc != nil {
		return m.EstablishSessionFunc(accountID, rememberMe)
	}
	return "auth_token_" + accountID, nil
}

func (m *MockTokenIssuer) IssueRememberToken(accountID string) (string, error) {
	if m.IssueRememberTokenFunc != nil {
		return m.IssueRememberTokenFunc(accountID)
	}
	return "remember_token_" + accountID, nil
}

func (m *MockTokenIssuer) VerifyRememberToken(token string) (string, bool) {
	if m.VerifyRememberTokenFunc != nil {
		return m.VerifyRememberTokenFunc(token)
	}
	return "", false
}

// MockGateway implements gateway.Gateway for testing
type MockGateway struct {
	EnrollFunc          func(ctx context.Context, account *models.Account) (*gateway.Enrollment, error)
	SendChallengeFunc   func(ctx context.Context, account *models.Account) (*gateway.SendResult, error)
	VerifyChallengeFunc func(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error)
	UnenrollFunc        func(ctx context.Context, deviceID string) (gateway.Outcome, error)
}

func (m *MockGateway) Enroll(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
	if m.EnrollFunc != nil {
		return m.EnrollFunc(ctx, account)
	}
	return &gateway.Enrollment{DeviceID: "device_test"}, nil
}

func (m *MockGateway) SendChallenge(ctx context.Context, account *models.Account) (*gateway.SendResult, error) {
	if m.SendChallengeFunc != nil {
		return m.SendChallengeFunc(ctx, account)
	}
	return &gateway.SendResult{Sent: true, Message: "Token was sent."}, nil
}

func (m *MockGateway) VerifyChallenge(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error) {
	if m.VerifyChallengeFunc != nil {
		return m.VerifyChallengeFunc(ctx, account, code)
	}
	return gateway.OutcomeRejected, nil
}

func (m *MockGateway) Unenroll(ctx context.Context, deviceID string) (gateway.Outcome, error) {
	if m.UnenrollFunc != nil {
		return m.UnenrollFunc(ctx, deviceID)
	}
	return gateway.OutcomeApproved, nil
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	SendSecondFactorEnabledFunc  func(ctx context.Context, email string) error
	SendSecondFactorDisabledFunc func(ctx context.Context, email string) error
	EnabledSent                  int
	DisabledSent                 int
}

func (m *MockNotifier) SendSecondFactorEnabled(ctx context.Context, email string) error {
	m.EnabledSent++
	if m.SendSecondFactorEnabledFunc != nil {
		return m.SendSecondFactorEnabledFunc(ctx, email)
	}
	return nil
}

func (m *MockNotifier) SendSecondFactorDisabled(ctx context.Context, email string) error {
	m.DisabledSent++
	if m.SendSecondFactorDisabledFunc != nil {
		return m.SendSecondFactorDisabledFunc(ctx, email)
	}
	return nil
}

// NewTestAccount creates a password-only account with a known password
func NewTestAccount(id, email, password string) *models.Account {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	now := time.Now()
	return &models.Account{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		CountryCode:  "1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAccountWithSecondFactor creates an account that requires a code
// at sign-in
func NewTestAccountWithSecondFactor(id, email, password string) *models.Account {
	account := NewTestAccount(id, email, password)
	account.PhoneNumber = "5551234567"
	account.SecondFactorEnabled = true
	account.ProviderDeviceID = "device_" + id
	return account
}

// NewTestAccountLocked creates a locked account
func NewTestAccountLocked(id, email, password string) *models.Account {
	account := NewTestAccountWithSecondFactor(id, email, password)
	lockedUntil := time.Now().Add(30 * time.Minute)
	account.LockedUntil = &lockedUntil
	return account
}

// NewTestLoginSession creates an active password-verified attempt
func NewTestLoginSession(accountID string) *models.LoginSession {
	now := time.Now()
	return &models.LoginSession{
		AccountID:       accountID,
		PasswordChecked: true,
		CreatedAt:       now,
		ExpiresAt:       now.Add(10 * time.Minute),
	}
}
