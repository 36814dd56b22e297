package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/VideoTube/pkg/health"
	"github.com/utafrali/VideoTube/pkg/middleware"
)

const serviceName = "accounts"

// RouterConfig carries the cross-cutting HTTP settings.
type RouterConfig struct {
	CORS        middleware.CORSConfig
	AuthLimit   middleware.RateLimitConfig
	PprofCIDRs  []string
	EnablePprof bool
}

// NewRouter creates a chi router with all account routes registered. The
// rate limiter janitor stops when ctx is cancelled.
func NewRouter(
	ctx context.Context,
	cfg RouterConfig,
	users *UserHandler,
	resolve middleware.IdentityResolver,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.EnablePprof {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	authLimit := middleware.RateLimit(ctx, cfg.AuthLimit, logger)

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.NoStore)

		// Public, rate limited
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/register", users.Register)
			r.Post("/login", users.Login)
			r.Post("/refresh-token", users.RefreshToken)
		})

		// Public, identity attached when present
		r.With(middleware.OptionalAuth(resolve)).Get("/c/{username}", users.Channel)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(resolve))
			r.Post("/logout", users.Logout)
			r.Post("/change-password", users.ChangePassword)
			r.Get("/current-user", users.CurrentUser)
			r.Patch("/update-account", users.UpdateAccount)
			r.Patch("/avatar", users.UpdateAvatar)
			r.Patch("/cover-image", users.UpdateCoverImage)
			r.Get("/history", users.WatchHistory)
		})
	})

	return r
}
