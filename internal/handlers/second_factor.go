package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phenopolis/twofactor/internal/auth"
	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/models"
	"github.com/phenopolis/twofactor/internal/services"
	pkghttp "github.com/phenopolis/twofactor/pkg/http"
)

// EnrollmentServiceInterface defines the enrollment operations the
// handler drives.
type EnrollmentServiceInterface interface {
	Start(ctx context.Context, input services.StartEnrollmentInput) (*services.EnrollmentStatus, error)
	ShowInstallation(ctx context.Context, accountID string) (*services.EnrollmentStatus, error)
	VerifyInstallation(ctx context.Context, accountID, code, ipAddress string) error
	RequestCode(ctx context.Context, accountID, ipAddress string) (*gateway.SendResult, error)
	Disable(ctx context.Context, accountID, ipAddress string) error
	Status(ctx context.Context, accountID string) (*services.EnrollmentStatus, error)
}

// SecondFactorHandler serves the code-verification step of sign-in and
// the enrollment endpoints behind an authenticated session.
type SecondFactorHandler struct {
	login      LoginServiceInterface
	enrollment EnrollmentServiceInterface
	config     HandlerConfig
	ipConfig   *pkghttp.IPConfig
}

func NewSecondFactorHandler(login LoginServiceInterface, enrollment EnrollmentServiceInterface, config HandlerConfig, ipConfig *pkghttp.IPConfig) *SecondFactorHandler {
	return &SecondFactorHandler{
		login:      login,
		enrollment: enrollment,
		config:     config,
		ipConfig:   ipConfig,
	}
}

// ShowVerify confirms there is an attempt waiting for a code, so the
// client can render the verification form. Without one the caller is
// sent back to the login form; the response never names an account.
func (h *SecondFactorHandler) ShowVerify(w http.ResponseWriter, r *http.Request) {
	_, err := h.login.Status(r.Context(), auth.CookieValue(r, auth.LoginSessionCookie))
	if err != nil {
		if errors.Is(err, models.ErrNoActiveAttempt) {
			pkghttp.WriteNoActiveAttempt(w)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{Status: services.StatusSecondFactorRequired})
}

// Verify checks the submitted code and completes the sign-in. A wrong
// code and a provider outage produce byte-identical failure responses so
// the endpoint cannot be used to probe which happened.
func (h *SecondFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.login.VerifyCode(r.Context(), services.VerifyCodeInput{
		AttemptToken:   auth.CookieValue(r, auth.LoginSessionCookie),
		Code:           req.Code,
		RememberDevice: req.RememberDevice,
		IPAddress:      pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoActiveAttempt):
			pkghttp.WriteNoActiveAttempt(w)
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteLocked(w)
		case errors.Is(err, models.ErrInvalidCode), errors.Is(err, models.ErrProviderUnavailable):
			pkghttp.WriteVerificationFailed(w)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.ClearLoginSessionCookie(w, h.config.Cookie)
	auth.SetAuthSessionCookie(w, result.AuthToken, h.config.SessionExpiry, h.config.Cookie)
	if result.RememberToken != "" {
		auth.SetRememberDeviceCookie(w, result.RememberToken, h.config.RememberDeviceExpiry, h.config.Cookie)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(VerifyCodeResponse{
		Status:    services.StatusAuthenticated,
		AuthToken: result.AuthToken,
		ReturnTo:  result.ReturnTo,
	})
}

// RequestCode asks the provider to send a fresh code: for the pending
// login attempt when one exists, otherwise for the signed-in account
// completing an enrollment.
func (h *SecondFactorHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	attemptToken := auth.CookieValue(r, auth.LoginSessionCookie)
	claims := auth.AccountFromContext(r)

	var result *gateway.SendResult
	var err error
	switch {
	case attemptToken != "":
		result, err = h.login.RequestCode(r.Context(), attemptToken, ipAddress)
		if errors.Is(err, models.ErrNoActiveAttempt) && claims != nil {
			// Stale attempt cookie on a signed-in client; the account
			// identity still stands on its own.
			result, err = h.enrollment.RequestCode(r.Context(), claims.AccountID, ipAddress)
		}
	case claims != nil:
		result, err = h.enrollment.RequestCode(r.Context(), claims.AccountID, ipAddress)
	default:
		pkghttp.WriteNoActiveAttempt(w)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoActiveAttempt):
			pkghttp.WriteNoActiveAttempt(w)
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteLocked(w)
		case errors.Is(err, models.ErrNotEnrolled):
			pkghttp.WriteError(w, http.StatusConflict, "not_enrolled", "Two-factor authentication is not set up for this account.")
		case errors.Is(err, models.ErrProviderUnavailable):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "send_failed", "Unable to send verification code.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RequestCodeResponse{Sent: result.Sent, Message: result.Message})
}

// Enable starts enrollment for the signed-in account.
func (h *SecondFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	claims := auth.AccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req EnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	status, err := h.enrollment.Start(r.Context(), services.StartEnrollmentInput{
		AccountID:   claims.AccountID,
		PhoneNumber: req.PhoneNumber,
		CountryCode: req.CountryCode,
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "A phone number is required to enable two-factor authentication")
		case errors.Is(err, models.ErrProviderUnavailable):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "provider_unavailable", "Something went wrong while enabling two-factor authentication")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ShowInstallation reports the pending enrollment so the client can
// render the installation-verification form, with a fresh QR code for
// providers that support provisioning.
func (h *SecondFactorHandler) ShowInstallation(w http.ResponseWriter, r *http.Request) {
	claims := auth.AccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.enrollment.ShowInstallation(r.Context(), claims.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotEnrolled):
			pkghttp.WriteError(w, http.StatusConflict, "not_enrolled", "Two-factor authentication is not set up for this account.")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// VerifyInstallation checks the first code after enrollment and flips
// the account to second-factor-required. Failure responses are uniform,
// matching the sign-in verification endpoint.
func (h *SecondFactorHandler) VerifyInstallation(w http.ResponseWriter, r *http.Request) {
	claims := auth.AccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req VerifyInstallationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.enrollment.VerifyInstallation(r.Context(), claims.AccountID, req.Code, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCode), errors.Is(err, models.ErrProviderUnavailable):
			pkghttp.WriteVerificationFailed(w)
		case errors.Is(err, models.ErrNotEnrolled):
			pkghttp.WriteError(w, http.StatusConflict, "not_enrolled", "Two-factor authentication is not set up for this account.")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(services.EnrollmentStatus{SecondFactorEnabled: true})
}

// Disable turns the second factor off and drops the trusted-device
// cookie, since the device has nothing left to bypass.
func (h *SecondFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.AccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.enrollment.Disable(r.Context(), claims.AccountID, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrProviderUnavailable):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "provider_unavailable", "Something went wrong while disabling two-factor authentication")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Something went wrong while disabling two-factor authentication")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.ClearRememberDeviceCookie(w, h.config.Cookie)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(services.EnrollmentStatus{SecondFactorEnabled: false})
}

// Status reports the enrollment state for the settings page.
func (h *SecondFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.AccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.enrollment.Status(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
