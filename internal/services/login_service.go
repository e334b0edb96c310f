package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/phenopolis/twofactor/internal/auth"
	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
	pkgauth "github.com/phenopolis/twofactor/pkg/auth"
	pkglogger "github.com/phenopolis/twofactor/pkg/logger"
)

// AttemptTracker manages the transient login attempt between the
// password check and the second-factor check.
type AttemptTracker interface {
	BeginAttempt(ctx context.Context, accountID string, rememberMe bool, returnTo string) (string, error)
	Current(ctx context.Context, token string) (*models.LoginSession, error)
	MarkSecondFactorChecked(ctx context.Context, token string) error
	Clear(ctx context.Context, token string) error
}

// TokenIssuer signs session and remember-device tokens.
type TokenIssuer interface {
	EstablishSession(accountID string, rememberMe bool) (string, error)
	IssueRememberToken(accountID string) (string, error)
	VerifyRememberToken(token string) (accountID string, ok bool)
}

// Login statuses returned to the HTTP layer.
const (
	StatusAuthenticated        = "authenticated"
	StatusSecondFactorRequired = "second_factor_required"
)

// LoginService drives the sign-in state machine: password check, then
// (when the account has a second factor) the code check, then the
// authenticated session.
type LoginService struct {
	repo    AccountRepository
	tracker AttemptTracker
	gw      gateway.Gateway
	tokens  TokenIssuer
	lockout *LockoutService
	timing  *auth.TimingDelay
	audit   *pkglogger.AuditLogger
	logger  *slog.Logger
}

func NewLoginService(
	repo AccountRepository,
	tracker AttemptTracker,
	gw gateway.Gateway,
	tokens TokenIssuer,
	lockout *LockoutService,
	timing *auth.TimingDelay,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		repo:    repo,
		tracker: tracker,
		gw:      gw,
		tokens:  tokens,
		lockout: lockout,
		timing:  timing,
		audit:   audit,
		logger:  logger,
	}
}

type LoginInput struct {
	Email         string
	Password      string
	RememberMe    bool
	ReturnTo      string
	RememberToken string // trusted-device cookie value, may be empty
	IPAddress     string
}

type LoginResult struct {
	Status       string
	AuthToken    string // set when Status == StatusAuthenticated
	AttemptToken string // set when Status == StatusSecondFactorRequired
	ReturnTo     string
}

// Login checks the password and either completes the sign-in or parks it
// behind the second factor. A valid remember-device token for the same
// account skips the code check entirely.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, models.ErrUnauthorized
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.timing.Wait(false)
			s.audit.Log(pkglogger.AuditEvent{
				EventType:     pkglogger.EventPasswordCheck,
				IPAddress:     input.IPAddress,
				Success:       false,
				FailureReason: "invalid_credentials",
			})
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.Locked(time.Now()) {
		s.audit.Log(pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordCheck,
			AccountID:     account.ID,
			IPAddress:     input.IPAddress,
			Success:       false,
			FailureReason: "locked",
		})
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, input.Password); err != nil {
		s.timing.Wait(false)
		s.audit.Log(pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordCheck,
			AccountID:     account.ID,
			IPAddress:     input.IPAddress,
			Success:       false,
			FailureReason: "invalid_credentials",
		})
		return nil, models.ErrUnauthorized
	}
	s.timing.Wait(true)

	s.audit.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordCheck,
		AccountID: account.ID,
		IPAddress: input.IPAddress,
		Success:   true,
	})

	if !account.SecondFactorRequired() {
		return s.completeSignIn(ctx, account, input.RememberMe, input.ReturnTo)
	}

	// Trusted-device bypass. The token must resolve to this account; a
	// token for any other account is ignored, not an error.
	if id, ok := s.tokens.VerifyRememberToken(input.RememberToken); ok && id == account.ID {
		s.audit.Log(pkglogger.AuditEvent{
			EventType: pkglogger.EventRememberDeviceUsed,
			AccountID: account.ID,
			IPAddress: input.IPAddress,
			Success:   true,
		})
		if err := s.repo.TouchSecondFactorSuccess(ctx, account.ID); err != nil {
			s.logger.Error("failed to stamp second-factor success", slog.Any("error", err))
		}
		return s.completeSignIn(ctx, account, input.RememberMe, input.ReturnTo)
	}

	attemptToken, err := s.tracker.BeginAttempt(ctx, account.ID, input.RememberMe, input.ReturnTo)
	if err != nil {
		s.logger.Error("failed to begin login attempt", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &LoginResult{
		Status:       StatusSecondFactorRequired,
		AttemptToken: attemptToken,
	}, nil
}

func (s *LoginService) completeSignIn(ctx context.Context, account *models.Account, rememberMe bool, returnTo string) (*LoginResult, error) {
	authToken, err := s.tokens.EstablishSession(account.ID, rememberMe)
	if err != nil {
		s.logger.Error("failed to establish session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account signed in", slog.String("account_id", account.ID))

	return &LoginResult{
		Status:    StatusAuthenticated,
		AuthToken: authToken,
		ReturnTo:  returnTo,
	}, nil
}

type VerifyCodeInput struct {
	AttemptToken   string
	Code           string
	RememberDevice bool
	IPAddress      string
}

type VerifyCodeResult struct {
	AuthToken     string
	RememberToken string // set when RememberDevice was requested
	ReturnTo      string
}

// VerifyCode checks the submitted second-factor code for the in-progress
// login attempt. A provider outage is reported as ErrProviderUnavailable
// and never counts toward lockout; only a genuine rejection increments
// the failure counter.
func (s *LoginService) VerifyCode(ctx context.Context, input VerifyCodeInput) (*VerifyCodeResult, error) {
	sess, err := s.currentAttempt(ctx, input.AttemptToken)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetByID(ctx, sess.AccountID)
	if err != nil {
		s.logger.Error("failed to load account for verification", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.Locked(time.Now()) {
		s.audit.LogSecondFactorAttempt(account.ID, input.IPAddress, false, "locked")
		return nil, models.ErrAccountLocked
	}

	outcome, verr := s.gw.VerifyChallenge(ctx, account, input.Code)
	switch outcome {
	case gateway.OutcomeApproved:
		return s.completeSecondFactor(ctx, account, sess, input)

	case gateway.OutcomeProviderError:
		s.logger.Error("verification provider error", slog.Any("error", verr))
		s.audit.LogSecondFactorAttempt(account.ID, input.IPAddress, false, "provider_error")
		return nil, models.ErrProviderUnavailable

	default: // rejected
		s.audit.LogSecondFactorAttempt(account.ID, input.IPAddress, false, "wrong_code")

		locked, lerr := s.lockout.ReportFailure(ctx, account.ID)
		if lerr != nil {
			return nil, lerr
		}
		if locked {
			s.audit.Log(pkglogger.AuditEvent{
				EventType: pkglogger.EventAccountLocked,
				AccountID: account.ID,
				IPAddress: input.IPAddress,
				Success:   false,
			})
			return nil, models.ErrAccountLocked
		}
		return nil, models.ErrInvalidCode
	}
}

func (s *LoginService) completeSecondFactor(ctx context.Context, account *models.Account, sess *models.LoginSession, input VerifyCodeInput) (*VerifyCodeResult, error) {
	// Record the passed check on the attempt first: if issuing the session
	// token fails below, the attempt still shows the code was verified.
	if err := s.tracker.MarkSecondFactorChecked(ctx, input.AttemptToken); err != nil {
		s.logger.Error("failed to mark second factor checked", slog.Any("error", err))
	}

	if err := s.repo.TouchSecondFactorSuccess(ctx, account.ID); err != nil {
		s.logger.Error("failed to stamp second-factor success", slog.Any("error", err))
	}

	authToken, err := s.tokens.EstablishSession(account.ID, sess.RememberMe)
	if err != nil {
		s.logger.Error("failed to establish session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The attempt is consumed; the auth token carries the session from
	// here on.
	if err := s.tracker.Clear(ctx, input.AttemptToken); err != nil {
		s.logger.Error("failed to clear login attempt", slog.Any("error", err))
	}

	result := &VerifyCodeResult{
		AuthToken: authToken,
		ReturnTo:  sess.ReturnTo,
	}

	if input.RememberDevice {
		rememberToken, err := s.tokens.IssueRememberToken(account.ID)
		if err != nil {
			// The sign-in still succeeds; the device just is not
			// remembered.
			s.logger.Error("failed to issue remember-device token", slog.Any("error", err))
		} else {
			result.RememberToken = rememberToken
		}
	}

	s.audit.LogSecondFactorAttempt(account.ID, input.IPAddress, true, "")
	s.logger.Info("second factor verified", slog.String("account_id", account.ID))

	return result, nil
}

// RequestCode asks the provider to deliver a fresh code for the
// in-progress attempt.
func (s *LoginService) RequestCode(ctx context.Context, attemptToken, ipAddress string) (*gateway.SendResult, error) {
	sess, err := s.currentAttempt(ctx, attemptToken)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetByID(ctx, sess.AccountID)
	if err != nil {
		s.logger.Error("failed to load account for code request", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.Locked(time.Now()) {
		return nil, models.ErrAccountLocked
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

// Status exposes the in-progress attempt so the verification page can
// render. ErrNoActiveAttempt sends the caller back to the login form.
func (s *LoginService) Status(ctx context.Context, attemptToken string) (*models.LoginSession, error) {
	return s.currentAttempt(ctx, attemptToken)
}

// AbandonAttempt discards a half-finished login.
func (s *LoginService) AbandonAttempt(ctx context.Context, attemptToken, ipAddress string) error {
	sess, err := s.tracker.Current(ctx, attemptToken)
	if err != nil {
		return models.ErrInternalServer
	}
	if sess != nil {
		s.audit.Log(pkglogger.AuditEvent{
			EventType: pkglogger.EventSignOut,
			AccountID: sess.AccountID,
			IPAddress: ipAddress,
			Success:   true,
		})
	}
	return s.tracker.Clear(ctx, attemptToken)
}

func (s *LoginService) currentAttempt(ctx context.Context, attemptToken string) (*models.LoginSession, error) {
	sess, err := s.tracker.Current(ctx, attemptToken)
	if err != nil {
		s.logger.Error("failed to read login attempt", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if sess == nil {
		return nil, models.ErrNoActiveAttempt
	}
	return sess, nil
}
