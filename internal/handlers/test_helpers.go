package handlers

import (
	"context"

	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
	"github.com/phenopolis/twofactor/internal/services"
)

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc          func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	VerifyCodeFunc     func(ctx context.Context, input services.VerifyCodeInput) (*services.VerifyCodeResult, error)
	RequestCodeFunc    func(ctx context.Context, attemptToken, ipAddress string) (*gateway.SendResult, error)
	StatusFunc         func(ctx context.Context, attemptToken string) (*models.LoginSession, error)
	AbandonAttemptFunc func(ctx context.Context, attemptToken, ipAddress string) error
}

func (m *MockLoginService) Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, input)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockLoginService) VerifyCode(ctx context.Context, input services.VerifyCodeInput) (*services.VerifyCodeResult, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, input)
	}
	return nil, models.ErrNoActiveAttempt
}

func (m *MockLoginService) RequestCode(ctx context.Context, attemptToken, ipAddress string) (*gateway.SendResult, error) {
	if m.RequestCodeFunc != nil {
		return m.RequestCodeFunc(ctx, attemptToken, ipAddress)
	}
	return nil, models.ErrNoActiveAttempt
}

func (m *MockLoginService) Status(ctx context.Context, attemptToken string) (*models.LoginSession, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, attemptToken)
	}
	return nil, models.ErrNoActiveAttempt
}

func (m *MockLoginService) AbandonAttempt(ctx context.Context, attemptToken, ipAddress string) error {
	if m.AbandonAttemptFunc != nil {
		return m.AbandonAttemptFunc(ctx, attemptToken, ipAddress)
	}
	return nil
}

// MockEnrollmentService implements EnrollmentServiceInterface for testing
type MockEnrollmentService struct {
	StartFunc              func(ctx context.Context, input services.StartEnrollmentInput) (*services.EnrollmentStatus, error)
	ShowInstallationFunc   func(ctx context.Context, accountID string) (*services.EnrollmentStatus, error)
	VerifyInstallationFunc func(ctx context.Context, accountID, code, ipAddress string) error
	RequestCodeFunc        func(ctx context.Context, accountID, ipAddress string) (*gateway.SendResult, error)
	DisableFunc            func(ctx context.Context, accountID, ipAddress string) error
	StatusFunc             func(ctx context.Context, accountID string) (*services.EnrollmentStatus, error)
}

func (m *MockEnrollmentService) Start(ctx context.Context, input services.StartEnrollmentInput) (*services.EnrollmentStatus, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, input)
	}
	return &services.EnrollmentStatus{VerificationPending: true}, nil
}

func (m *MockEnrollmentService) ShowInstallation(ctx context.Context, accountID string) (*services.EnrollmentStatus, error) {
	if m.ShowInstallationFunc != nil {
		return m.ShowInstallationFunc(ctx, accountID)
	}
	return &services.EnrollmentStatus{VerificationPending: true}, nil
}

func (m *MockEnrollmentService) RequestCode(ctx context.Context, accountID, ipAddress string) (*gateway.SendResult, error) {
	if m.RequestCodeFunc != nil {
		return m.RequestCodeFunc(ctx, accountID, ipAddress)
	}
	return &gateway.SendResult{Sent: true, Message: "Token was sent."}, nil
}

func (m *MockEnrollmentService) VerifyInstallation(ctx context.Context, accountID, code, ipAddress string) error {
	if m.VerifyInstallationFunc != nil {
		return m.VerifyInstallationFunc(ctx, accountID, code, ipAddress)
	}
	return nil
}

func (m *MockEnrollmentService) Disable(ctx context.Context, accountID, ipAddress string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, accountID, ipAddress)
	}
	return nil
}

func (m *MockEnrollmentService) Status(ctx context.Context, accountID string) (*services.EnrollmentStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, accountID)
	}
	return &services.EnrollmentStatus{}, nil
}
