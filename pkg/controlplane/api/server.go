package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/controlplane/api/auth"
	sessionserver "github.com/reloadsync/reloadsync/pkg/session/server"
)

// Server provides the admin REST API over a session Registry: health
// probes, session/connection inspection, apply metrics, and a force-
// reload operation. It supports graceful shutdown with a configurable
// timeout.
type Server struct {
	server       *http.Server
	registry     *sessionserver.Registry
	jwtService   *auth.JWTService
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a new admin API HTTP server, stopped until Start is
// called. adminUsername/adminPasswordHash are the single bootstrap
// operator account's credentials (see config.AdminConfig). The JWT secret
// must be configured via config.JWT.Secret or the
// RELOADSYNC_CONTROLPLANE_SECRET environment variable.
func NewServer(config APIConfig, registry *sessionserver.Registry, adminUsername, adminPasswordHash string) (*Server, error) {
	config.applyDefaults()

	jwtSecret := config.GetJWTSecret()
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT secret must be at least 32 characters; set via %s env var or config", EnvControlPlaneSecret)
	}

	jwtConfig := auth.JWTConfig{
		Secret:               jwtSecret,
		Issuer:               "reloadsync",
		AccessTokenDuration:  config.JWT.AccessTokenDuration,
		RefreshTokenDuration: config.JWT.RefreshTokenDuration,
	}
	jwtService, err := auth.NewJWTService(jwtConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	router := NewRouter(registry, jwtService, adminUsername, adminPasswordHash)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server:     httpServer,
		registry:   registry,
		jwtService: jwtService,
		config:     config,
	}, nil
}

// Start starts the admin API HTTP server and blocks until ctx is
// cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("admin API server listening", "port", s.config.Port)
		logger.Debug("admin API endpoints available",
			"health", fmt.Sprintf("http://localhost:%d/health", s.config.Port),
			"ready", fmt.Sprintf("http://localhost:%d/health/ready", s.config.Port),
			"sessions", fmt.Sprintf("http://localhost:%d/api/v1/sessions", s.config.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("admin API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("admin API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("admin API server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("admin API server shutdown error: %w", err)
			logger.Error("admin API server shutdown error", "error", err)
		} else {
			logger.Info("admin API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
