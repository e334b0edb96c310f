package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phenopolis/twofactor/internal/auth"
	"github.com/phenopolis/twofactor/internal/database"
	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/handlers"
	"github.com/phenopolis/twofactor/internal/models"
	"github.com/phenopolis/twofactor/internal/repositories"
	"github.com/phenopolis/twofactor/internal/routes"
	"github.com/phenopolis/twofactor/internal/services"
	"github.com/phenopolis/twofactor/internal/session"
	pkghttp "github.com/phenopolis/twofactor/pkg/http"
	pkglogger "github.com/phenopolis/twofactor/pkg/logger"
)

// ScriptedGateway is a verification provider stand-in. It approves a
// single well-known code and records what was sent where.
type ScriptedGateway struct {
	mu          sync.Mutex
	ValidCode   string
	Outage      bool // when true, every call reports a provider error
	SentTo      []string
	Enrollments []string
	Removed     []string
}

func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{ValidCode: "123456"}
}

func (g *ScriptedGateway) Enroll(ctx context.Context, account *models.Account) (*gateway.Enrollment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Outage {
		return nil, models.ErrProviderUnavailable
	}
	deviceID := "scripted-device-" + account.ID
	g.Enrollments = append(g.Enrollments, deviceID)
	return &gateway.Enrollment{DeviceID: deviceID}, nil
}

func (g *ScriptedGateway) SendChallenge(ctx context.Context, account *models.Account) (*gateway.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Outage {
		return nil, models.ErrProviderUnavailable
	}
	g.SentTo = append(g.SentTo, account.PhoneNumber)
	return &gateway.SendResult{Sent: true, Message: "Token was sent."}, nil
}

func (g *ScriptedGateway) VerifyChallenge(ctx context.Context, account *models.Account, code string) (gateway.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Outage {
		return gateway.OutcomeProviderError, models.ErrProviderUnavailable
	}
	if code == g.ValidCode {
		return gateway.OutcomeApproved, nil
	}
	return gateway.OutcomeRejected, nil
}

func (g *ScriptedGateway) Unenroll(ctx context.Context, deviceID string) (gateway.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Outage {
		return gateway.OutcomeProviderError, models.ErrProviderUnavailable
	}
	g.Removed = append(g.Removed, deviceID)
	return gateway.OutcomeApproved, nil
}

func (g *ScriptedGateway) SetOutage(outage bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Outage = outage
}

// TestServer wraps httptest.Server with a real database and a scripted
// verification provider.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	Gateway      *ScriptedGateway
	Notifier     *services.MockNotifier
	TokenManager *auth.TokenManager
}

// NewTestServer wires the full HTTP stack the way main does, with the
// provider and email notifier replaced by in-process fakes.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	accountRepo := repositories.NewAccountRepository(db)
	tracker := session.NewTracker(session.NewPGStore(db), 10*time.Minute)

	tokenManager := auth.NewTokenManager(
		"test-secret-32-characters-long!!",
		12*time.Hour,
		14*24*time.Hour,
		30*24*time.Hour,
	)

	gw := NewScriptedGateway()
	notifier := &services.MockNotifier{}
	auditLogger := pkglogger.NewAuditLogger(logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	lockoutService := services.NewLockoutService(accountRepo, logger, services.LockoutConfig{
		MaxFails:        5,
		LockoutDuration: time.Hour,
	})
	loginService := services.NewLoginService(
		accountRepo, tracker, gw, tokenManager,
		lockoutService, timingDelay, auditLogger, logger,
	)
	enrollmentService := services.NewEnrollmentService(accountRepo, gw, notifier, auditLogger, logger)

	handlerConfig := handlers.HandlerConfig{
		Cookie:               auth.CookieConfig{SameSite: "lax"},
		SessionExpiry:        12 * time.Hour,
		AttemptExpiry:        10 * time.Minute,
		RememberDeviceExpiry: 30 * 24 * time.Hour,
	}
	ipConfig := &pkghttp.IPConfig{}

	authHandler := handlers.NewAuthHandler(loginService, handlerConfig, ipConfig)
	secondFactorHandler := handlers.NewSecondFactorHandler(loginService, enrollmentService, handlerConfig, ipConfig)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	routes.RegisterRoutes(router, authHandler, secondFactorHandler, tokenManager)

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		Gateway:      gw,
		Notifier:     notifier,
		TokenManager: tokenManager,
	}
}

func (ts *TestServer) Close() {
	ts.Server.Close()
}

// NewClient returns an HTTP client with a cookie jar, so the login
// session and remember-device cookies flow across requests the way a
// browser would carry them.
func (ts *TestServer) NewClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// PostJSON sends a JSON body and decodes the JSON response into out
// (when out is non-nil). Returns the raw response for status and
// cookie assertions.
func (ts *TestServer) PostJSON(client *http.Client, path string, body, out any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := client.Post(ts.Server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return resp, decodeBody(resp, out)
}

// Do sends a request with an optional Bearer token and JSON body.
func (ts *TestServer) Do(client *http.Client, method, path, bearer string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return resp, decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
