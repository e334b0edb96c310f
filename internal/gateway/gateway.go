package gateway

import (
	"context"

	"github.com/phenopolis/twofactor/internal/models"
)

// Outcome is the normalized result of a provider verification call.
// Transport and provider-side failures are collapsed to
// OutcomeProviderError at this boundary; callers never see raw HTTP
// errors.
type Outcome int

const (
	OutcomeApproved Outcome = iota
	OutcomeRejected
	OutcomeProviderError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "provider_error"
	}
}

// Enrollment is the result of registering an account with the provider.
// The SMS provider has no enrollment step and returns a zero value.
type Enrollment struct {
	DeviceID        string
	ProvisioningURI string // legacy provider only, when QR provisioning is enabled
}

// SendResult reports an out-of-band code send. Message is safe to show
// to the user.
type SendResult struct {
	Sent    bool
	Message string
}

// Gateway abstracts the verification provider. Implementations are
// selected once at configuration time; the login flow never inspects
// which variant it holds.
type Gateway interface {
	Enroll(ctx context.Context, account *models.Account) (*Enrollment, error)
	SendChallenge(ctx context.Context, account *models.Account) (*SendResult, error)
	VerifyChallenge(ctx context.Context, account *models.Account, code string) (Outcome, error)
	Unenroll(ctx context.Context, deviceID string) (Outcome, error)
}
