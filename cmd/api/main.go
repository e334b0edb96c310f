package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phenopolis/twofactor/internal/auth"
	"github.com/phenopolis/twofactor/internal/background"
	"github.com/phenopolis/twofactor/internal/config"
	"github.com/phenopolis/twofactor/internal/database"
	"github.com/phenopolis/twofactor/internal/gateway"
	"github.com/phenopolis/twofactor/internal/handlers"
	middlewareCustom "github.com/phenopolis/twofactor/internal/middleware"
	"github.com/phenopolis/twofactor/internal/repositories"
	"github.com/phenopolis/twofactor/internal/routes"
	"github.com/phenopolis/twofactor/internal/services"
	"github.com/phenopolis/twofactor/internal/session"
	pkghttp "github.com/phenopolis/twofactor/pkg/http"
	pkglogger "github.com/phenopolis/twofactor/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("provider", cfg.Provider.Name))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(&cfg.Database); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories and session tracking
	accountRepo := repositories.NewAccountRepository(db)
	sessionStore := session.NewPGStore(db)
	tracker := session.NewTracker(sessionStore, cfg.Auth.LoginAttemptExpiry)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(sessionStore, logger, cfg.Auth.CleanupInterval)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.SessionExpiry,
		cfg.Auth.RememberMeExpiry,
		cfg.Auth.RememberDeviceExpiry,
	)

	// Verification provider is selected once, here. Nothing downstream
	// knows which provider it talks to.
	var gw gateway.Gateway
	switch cfg.Provider.Name {
	case config.ProviderTwilioVerify:
		gw = gateway.NewTwilioVerifyGateway(
			cfg.Provider.TwilioAccountSID,
			cfg.Provider.TwilioAuthToken,
			cfg.Provider.TwilioVerifyService,
			cfg.Provider.TwilioBaseURL,
			logger,
		)
	case config.ProviderAuthy:
		gw = gateway.NewAuthyGateway(
			cfg.Provider.AuthyAPIKey,
			cfg.Provider.AuthyBaseURL,
			cfg.Provider.EnableQRCode,
			logger,
		)
	}

	// Email notifications for enrollment changes
	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewAWSSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 100,
	})

	// Initialize services
	lockoutService := services.NewLockoutService(accountRepo, logger, services.LockoutConfig{
		MaxFails:        cfg.Auth.MaxSecondFactorFails,
		LockoutDuration: cfg.Auth.LockoutDuration,
	})
	loginService := services.NewLoginService(
		accountRepo, tracker, gw, tokenManager,
		lockoutService, timingDelay, auditLogger, logger,
	)
	enrollmentService := services.NewEnrollmentService(accountRepo, gw, notifier, auditLogger, logger)

	// Initialize handlers
	handlerConfig := handlers.HandlerConfig{
		Cookie: auth.CookieConfig{
			Secure:   cfg.Server.Env == "production",
			SameSite: "lax",
		},
		SessionExpiry:        cfg.Auth.SessionExpiry,
		AttemptExpiry:        cfg.Auth.LoginAttemptExpiry,
		RememberDeviceExpiry: cfg.Auth.RememberDeviceExpiry,
	}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	authHandler := handlers.NewAuthHandler(loginService, handlerConfig, ipConfig)
	secondFactorHandler := handlers.NewSecondFactorHandler(loginService, enrollmentService, handlerConfig, ipConfig)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, secondFactorHandler, tokenManager)

	// Health check with database
	router.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
