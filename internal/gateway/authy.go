package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phenopolis/twofactor/internal/models"
)

// AuthyGateway talks to the legacy Authy API, which registers a device
// per account and verifies codes against that registration.
type AuthyGateway struct {
	apiKey       string
	baseURL      string
	provisioning bool // fetch the authenticator provisioning URI on enrollment
	client       *http.Client
	logger       *slog.Logger
}

func NewAuthyGateway(apiKey, baseURL string, provisioning bool, logger *slog.Logger) *AuthyGateway {
	return &AuthyGateway{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		provisioning: provisioning,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

type authyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    struct {
		ID int64 `json:"id"`
	} `json:"user"`
	OTPAuthURL string `json:"otpauth_url"`
}

func (g *AuthyGateway) do(ctx context.Context, method, path string, form url.Values) (*authyResponse, int, error) {
	endpoint := g.baseURL + "/protected/json/" + path

	var reqBody *strings.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	} else {
		reqBody = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("X-Authy-API-Key", g.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var body authyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 500 {
		return nil, resp.StatusCode, err
	}
	return &body, resp.StatusCode, nil
}

// Enroll registers the account as an Authy user and returns the
// provider-issued device id. Calling it again for an already-enrolled
// account simply produces a replacement id.
func (g *AuthyGateway) Enroll(ctx context.Context, account *models.Account) (*Enrollment, error) {
	form := url.Values{}
	form.Set("user[email]", account.Email)
	form.Set("user[cellphone]", account.PhoneNumber)
	form.Set("user[country_code]", account.CountryCode)

	body, status, err := g.do(ctx, http.MethodPost, "users/new", form)
	if err != nil {
		g.logger.Error("authy registration failed", slog.Any("error", err))
		return nil, models.ErrProviderUnavailable
	}
	if status >= 500 {
		g.logger.Error("authy registration failed", slog.Int("status", status))
		return nil, models.ErrProviderUnavailable
	}
	if status >= 400 || !body.Success || body.User.ID == 0 {
		g.logger.Warn("authy rejected registration", slog.Int("status", status))
		return nil, models.ErrProviderUnavailable
	}

	enrollment := &Enrollment{DeviceID: fmt.Sprintf("%d", body.User.ID)}

	// QR provisioning is optional; a failure here degrades enrollment to
	// SMS-only rather than failing it.
	if g.provisioning {
		uri, err := g.provisioningURI(ctx, enrollment.DeviceID)
		if err != nil {
			g.logger.Warn("authy provisioning uri unavailable", slog.Any("error", err))
		} else {
			enrollment.ProvisioningURI = uri
		}
	}

	return enrollment, nil
}

// provisioningURI requests the authenticator-app provisioning secret for
// a registered device.
func (g *AuthyGateway) provisioningURI(ctx context.Context, deviceID string) (string, error) {
	body, status, err := g.do(ctx, http.MethodPost, "users/"+deviceID+"/secret", url.Values{})
	if err != nil || status >= 500 {
		return "", models.ErrProviderUnavailable
	}
	if status >= 400 || body.OTPAuthURL == "" {
		return "", models.ErrProviderUnavailable
	}
	return body.OTPAuthURL, nil
}

func (g *AuthyGateway) SendChallenge(ctx context.Context, account *models.Account) (*SendResult, error) {
	if account.ProviderDeviceID == "" {
		return nil, models.ErrNotEnrolled
	}

	body, status, err := g.do(ctx, http.MethodGet, "sms/"+account.ProviderDeviceID+"?force=true", nil)
	if err != nil {
		g.logger.Error("authy sms request failed", slog.Any("error", err))
		return nil, models.ErrProviderUnavailable
	}
	if status >= 500 {
		g.logger.Error("authy sms request failed", slog.Int("status", status))
		return nil, models.ErrProviderUnavailable
	}

	message := body.Message
	if message == "" {
		message = "Token was sent."
	}
	return &SendResult{Sent: body.Success, Message: message}, nil
}

// VerifyChallenge checks a code against the device registration. The
// force flag makes the provider verify even when it believes the device
// has a working authenticator app installed.
func (g *AuthyGateway) VerifyChallenge(ctx context.Context, account *models.Account, code string) (Outcome, error) {
	if account.ProviderDeviceID == "" {
		return OutcomeRejected, models.ErrNotEnrolled
	}

	path := fmt.Sprintf("verify/%s/%s?force=true", url.PathEscape(code), account.ProviderDeviceID)
	body, status, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		g.logger.Error("authy verify failed", slog.Any("error", err))
		return OutcomeProviderError, models.ErrProviderUnavailable
	}

	switch {
	case status >= 500:
		g.logger.Error("authy verify failed", slog.Int("status", status))
		return OutcomeProviderError, models.ErrProviderUnavailable
	case status == http.StatusUnauthorized, status >= 400:
		return OutcomeRejected, nil
	}

	if body.Success {
		return OutcomeApproved, nil
	}
	return OutcomeRejected, nil
}

// Unenroll deletes the provider-side registration. Rejected means the
// provider refused the delete; the caller decides what that implies for
// local state.
func (g *AuthyGateway) Unenroll(ctx context.Context, deviceID string) (Outcome, error) {
	if deviceID == "" {
		return OutcomeApproved, nil
	}

	body, status, err := g.do(ctx, http.MethodPost, "users/"+deviceID+"/remove", url.Values{})
	if err != nil {
		g.logger.Error("authy user delete failed", slog.Any("error", err))
		return OutcomeProviderError, models.ErrProviderUnavailable
	}

	switch {
	case status >= 500:
		g.logger.Error("authy user delete failed", slog.Int("status", status))
		return OutcomeProviderError, models.ErrProviderUnavailable
	case status >= 400, !body.Success:
		return OutcomeRejected, nil
	}

	return OutcomeApproved, nil
}
