package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/controlplane/api/auth"
	"github.com/reloadsync/reloadsync/pkg/controlplane/api/handlers"
	apiMiddleware "github.com/reloadsync/reloadsync/pkg/controlplane/api/middleware"
	sessionserver "github.com/reloadsync/reloadsync/pkg/session/server"
)

// NewRouter creates and configures the chi router for the admin REST API.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - POST /api/v1/auth/login - Admin operator authentication
//   - POST /api/v1/auth/refresh - Token refresh
//   - POST /api/v1/auth/logout - Stateless logout
//   - GET /api/v1/sessions - List active sessions
//   - GET /api/v1/sessions/{id} - Session detail
//   - GET /api/v1/sessions/{id}/connections - Live connection listing
//   - GET /api/v1/sessions/{id}/metrics - Mirrored apply-metric ring
//   - POST /api/v1/sessions/{id}/reload - Force a Reload to every member
func NewRouter(registry *sessionserver.Registry, jwtService *auth.JWTService, adminUsername, adminPasswordHash string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(registry)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	authHandler := handlers.NewAuthHandler(adminUsername, adminPasswordHash, VerifyPassword, jwtService)
	sessionsHandler := handlers.NewSessionsHandler(registry, logger.Default())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.JWTAuth(jwtService))
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))
			r.Use(apiMiddleware.RequireAdmin())

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionsHandler.List)
				r.Get("/{id}", sessionsHandler.Get)
				r.Get("/{id}/connections", sessionsHandler.Connections)
				r.Get("/{id}/metrics", sessionsHandler.Metrics)
				r.Post("/{id}/reload", sessionsHandler.ForceReload)
			})
		})
	})

	return r
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests using the internal logger: request start at
// DEBUG, completion at INFO (DEBUG for health checks, to keep liveness
// probe traffic out of the default log stream).
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
