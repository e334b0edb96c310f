package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenopolis/twofactor/internal/models"
)

func testAccount() *models.Account {
	return &models.Account{
		ID:          "acct-1",
		Email:       "user@example.com",
		PhoneNumber: "(555) 123-4567",
		CountryCode: "1",
	}
}

func newTwilioTestGateway(t *testing.T, handler http.HandlerFunc) *TwilioVerifyGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTwilioVerifyGateway("AC123", "token", "VA456", server.URL, slog.Default())
}

func TestTwilioSendChallenge(t *testing.T) {
	t.Run("successful send", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/Services/VA456/Verifications", r.URL.Path)

			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "AC123", user)
			assert.Equal(t, "token", pass)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
			assert.Equal(t, "sms", r.PostForm.Get("Channel"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"pending"}`))
		})

		result, err := gw.SendChallenge(context.Background(), testAccount())
		require.NoError(t, err)
		assert.True(t, result.Sent)
		assert.Equal(t, "Token was sent.", result.Message)
	})

	t.Run("rejected send is not an outage", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Invalid parameter"}`))
		})

		result, err := gw.SendChallenge(context.Background(), testAccount())
		require.NoError(t, err)
		assert.False(t, result.Sent)
	})

	t.Run("server error maps to provider unavailable", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := gw.SendChallenge(context.Background(), testAccount())
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	})

	t.Run("missing phone number", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("provider should not be called")
		})

		account := testAccount()
		account.PhoneNumber = ""

		_, err := gw.SendChallenge(context.Background(), account)
		assert.ErrorIs(t, err, models.ErrNotEnrolled)
	})
}

func TestTwilioVerifyChallenge(t *testing.T) {
	t.Run("approved code", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/Services/VA456/VerificationChecks", r.URL.Path)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
			assert.Equal(t, "123456", r.PostForm.Get("Code"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"approved"}`))
		})

		outcome, err := gw.VerifyChallenge(context.Background(), testAccount(), "123456")
		require.NoError(t, err)
		assert.Equal(t, OutcomeApproved, outcome)
	})

	t.Run("pending status means wrong code", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"pending"}`))
		})

		outcome, err := gw.VerifyChallenge(context.Background(), testAccount(), "000000")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, outcome)
	})

	t.Run("expired verification rejects", func(t *testing.T) {
		// Twilio returns 404 once a verification expires or was never started.
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"not found"}`))
		})

		outcome, err := gw.VerifyChallenge(context.Background(), testAccount(), "123456")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, outcome)
	})

	t.Run("server error is a provider error, not a rejection", func(t *testing.T) {
		gw := newTwilioTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		outcome, err := gw.VerifyChallenge(context.Background(), testAccount(), "123456")
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
		assert.Equal(t, OutcomeProviderError, outcome)
	})

	t.Run("unreachable provider is a provider error", func(t *testing.T) {
		gw := NewTwilioVerifyGateway("AC123", "token", "VA456", "http://127.0.0.1:1", slog.Default())

		outcome, err := gw.VerifyChallenge(context.Background(), testAccount(), "123456")
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
		assert.Equal(t, OutcomeProviderError, outcome)
	})
}

func TestE164(t *testing.T) {
	tests := []struct {
		name        string
		phone       string
		countryCode string
		expected    string
	}{
		{"formatted us number", "(555) 123-4567", "1", "+15551234567"},
		{"bare digits", "5551234567", "1", "+15551234567"},
		{"default country code", "5551234567", "", "+15551234567"},
		{"international", "20 7946 0958", "44", "+442079460958"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, E164(tt.phone, tt.countryCode))
		})
	}
}
