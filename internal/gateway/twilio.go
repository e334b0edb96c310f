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

// TwilioVerifyGateway talks to the Twilio Verify v2 API. The provider
// keeps no per-account registration: a deliverable phone number is the
// whole enrollment, so Enroll and Unenroll are local no-ops.
type TwilioVerifyGateway struct {
	accountSID string
	authToken  string
	serviceSID string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

func NewTwilioVerifyGateway(accountSID, authToken, serviceSID, baseURL string, logger *slog.Logger) *TwilioVerifyGateway {
	return &TwilioVerifyGateway{
		accountSID: accountSID,
		authToken:  authToken,
		serviceSID: serviceSID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type twilioVerification struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (g *TwilioVerifyGateway) post(ctx context.Context, path string, form url.Values) (*twilioVerification, int, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s", g.baseURL, g.serviceSID, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var body twilioVerification
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 500 {
		return nil, resp.StatusCode, err
	}
	return &body, resp.StatusCode, nil
}

// Enroll is a no-op: the account's phone number is sufficient context
// for this provider.
func (g *TwilioVerifyGateway) Enroll(ctx context.Context, account *models.Account) (*Enrollment, error) {
	if account.PhoneNumber == "" {
		return nil, models.ErrNotEnrolled
	}
	return &Enrollment{}, nil
}

func (g *TwilioVerifyGateway) SendChallenge(ctx context.Context, account *models.Account) (*SendResult, error) {
	if account.PhoneNumber == "" {
		return nil, models.ErrNotEnrolled
	}

	form := url.Values{}
	form.Set("To", E164(account.PhoneNumber, account.CountryCode))
	form.Set("Channel", "sms")

	_, status, err := g.post(ctx, "Verifications", form)
	if err != nil {
		g.logger.Error("twilio verification send failed", slog.Any("error", err))
		return nil, models.ErrProviderUnavailable
	}
	if status >= 500 {
		g.logger.Error("twilio verification send failed", slog.Int("status", status))
		return nil, models.ErrProviderUnavailable
	}
	if status >= 400 {
		g.logger.Warn("twilio rejected verification send", slog.Int("status", status))
		return &SendResult{Sent: false, Message: "Token could not be sent."}, nil
	}

	return &SendResult{Sent: true, Message: "Token was sent."}, nil
}

func (g *TwilioVerifyGateway) VerifyChallenge(ctx context.Context, account *models.Account, code string) (Outcome, error) {
	form := url.Values{}
	form.Set("To", E164(account.PhoneNumber, account.CountryCode))
	form.Set("Code", code)

	body, status, err := g.post(ctx, "VerificationChecks", form)
	if err != nil {
		g.logger.Error("twilio verification check failed", slog.Any("error", err))
		return OutcomeProviderError, models.ErrProviderUnavailable
	}

	switch {
	case status >= 500:
		g.logger.Error("twilio verification check failed", slog.Int("status", status))
		return OutcomeProviderError, models.ErrProviderUnavailable
	case status == http.StatusNotFound:
		// No pending verification for this number; the code cannot match.
		return OutcomeRejected, nil
	case status >= 400:
		return OutcomeRejected, nil
	}

	if body.Status == "approved" {
		return OutcomeApproved, nil
	}
	return OutcomeRejected, nil
}

// Unenroll is a no-op: all second-factor state for this provider lives
// on the account record.
func (g *TwilioVerifyGateway) Unenroll(ctx context.Context, deviceID string) (Outcome, error) {
	return OutcomeApproved, nil
}
