package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phenopolis/twofactor/internal/auth"
	"github.com/phenopolis/twofactor/internal/handlers"
	"github.com/phenopolis/twofactor/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	secondFactorHandler *handlers.SecondFactorHandler,
	tokenManager *auth.TokenManager,
) {
	authRateLimit := middleware.DefaultAuthRateLimit()
	verifyRateLimit := middleware.DefaultVerifyRateLimit()

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(authRateLimit)).Post("/auth/login", authHandler.Login)

	// Second-factor sign-in routes, gated by the login-session cookie:
	// the caller passed the password check but is not authenticated yet.
	// Request-code additionally serves signed-in accounts completing an
	// enrollment, so the auth token is honored when present.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(verifyRateLimit))
		r.Use(auth.OptionalAccount(tokenManager))
		r.Get("/second-factor/verify", secondFactorHandler.ShowVerify)
		r.Post("/second-factor/verify", secondFactorHandler.Verify)
		r.Post("/second-factor/request-code", secondFactorHandler.RequestCode)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAccount(tokenManager))

		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/second-factor", secondFactorHandler.Status)
		r.Post("/second-factor/enable", secondFactorHandler.Enable)
		r.Get("/second-factor/installation-verify", secondFactorHandler.ShowInstallation)
		r.Post("/second-factor/installation-verify", secondFactorHandler.VerifyInstallation)
		r.Delete("/second-factor", secondFactorHandler.Disable)
	})
}
