package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/phenopolis/twofactor/internal/auth"
	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
	"github.com/phenopolis/twofactor/internal/services"
	pkghttp "github.com/phenopolis/twofactor/pkg/http"
)

// LoginServiceInterface defines the sign-in state machine the handlers
// drive.
type LoginServiceInterface interface {
	Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	VerifyCode(ctx context.Context, input services.VerifyCodeInput) (*services.VerifyCodeResult, error)
	RequestCode(ctx context.Context, attemptToken, ipAddress string) (*gateway.SendResult, error)
	Status(ctx context.Context, attemptToken string) (*models.LoginSession, error)
	AbandonAttempt(ctx context.Context, attemptToken, ipAddress string) error
}

// HandlerConfig carries the cookie policy and lifetimes shared by the
// auth and second-factor handlers.
type HandlerConfig struct {
	Cookie               auth.CookieConfig
	SessionExpiry        time.Duration
	AttemptExpiry        time.Duration
	RememberDeviceExpiry time.Duration
}

// AuthHandler handles the password step of sign-in, and sign-out.
type AuthHandler struct {
	service  LoginServiceInterface
	config   HandlerConfig
	ipConfig *pkghttp.IPConfig
}

func NewAuthHandler(service LoginServiceInterface, config HandlerConfig, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		ipConfig: ipConfig,
	}
}

// Login checks the password and either establishes the session or parks
// the attempt behind the second factor.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		RememberMe:    req.RememberMe,
		ReturnTo:      req.ReturnTo,
		RememberToken: auth.CookieValue(r, auth.RememberDeviceCookie),
		IPAddress:     pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteLocked(w)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	if result.Status == services.StatusSecondFactorRequired {
		auth.SetLoginSessionCookie(w, result.AttemptToken, h.config.AttemptExpiry, h.config.Cookie)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(LoginResponse{Status: services.StatusSecondFactorRequired})
		return
	}

	auth.SetAuthSessionCookie(w, result.AuthToken, h.config.SessionExpiry, h.config.Cookie)
	auth.ClearLoginSessionCookie(w, h.config.Cookie)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{
		Status:    services.StatusAuthenticated,
		AuthToken: result.AuthToken,
		ReturnTo:  result.ReturnTo,
	})
}

// Logout abandons any half-finished attempt and clears the session
// cookie. The remember-device cookie survives sign-out: the device stays
// trusted until its token expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if token := auth.CookieValue(r, auth.LoginSessionCookie); token != "" {
		_ = h.service.AbandonAttempt(r.Context(), token, ipAddress)
	}

	auth.ClearLoginSessionCookie(w, h.config.Cookie)
	auth.ClearAuthSessionCookie(w, h.config.Cookie)

	w.WriteHeader(http.StatusNoContent)
}
