package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/internal/telemetry"
	"github.com/reloadsync/reloadsync/pkg/config"
	"github.com/reloadsync/reloadsync/pkg/controlplane/api"
	"github.com/reloadsync/reloadsync/pkg/metrics"
	sessionserver "github.com/reloadsync/reloadsync/pkg/session/server"
	"github.com/reloadsync/reloadsync/pkg/store"
	transportserver "github.com/reloadsync/reloadsync/pkg/transport/server"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reloadsyncd server",
	Long: `Start the reloadsyncd server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/reloadsync/config.yaml.

Examples:
  # Start in background (default)
  reloadsyncd start

  # Start in foreground
  reloadsyncd start --foreground

  # Start with custom config file
  reloadsyncd start --config /etc/reloadsync/config.yaml

  # Start with environment variable overrides
  RELOADSYNC_LOGGING_LEVEL=DEBUG reloadsyncd start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/reloadsync/reloadsyncd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/reloadsync/reloadsyncd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "reloadsync",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "reloadsync",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("reloadsync - live UI hot-reload session server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	var sessionMetrics metrics.SessionMetrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		sessionMetrics = metrics.NewSessionMetrics()
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
	}

	var sessionStore store.Store
	if cfg.Store.Enabled {
		gormStore, err := store.New(&cfg.Store, logger.Default())
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		sessionStore = gormStore
		logger.Info("Session persistence enabled", "type", cfg.Store.Type)
		defer func() {
			if err := gormStore.Close(); err != nil {
				logger.Error("session store close error", "error", err)
			}
		}()
	} else {
		logger.Info("Session persistence disabled (in-memory only)")
	}

	registry := sessionserver.NewRegistryWithStore(cfg.Session.IdleTTL, cfg.Session.MetricsRingCapacity, sessionMetrics, sessionStore, logger.Default())
	go registry.RunEviction(ctx, cfg.Session.EvictionInterval)

	transportCfg := transportserver.DefaultConfig()
	wsHandler := transportserver.NewHandler(registry, transportCfg, logger.Default())

	wsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      wsHandler,
		ReadTimeout:  0, // streaming websocket connections manage their own deadlines
		WriteTimeout: 0,
	}

	adminServer, err := api.NewServer(cfg.ControlPlane, registry, cfg.Admin.Username, cfg.Admin.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to create admin API server: %w", err)
	}
	logger.Info("Admin API configured", "port", cfg.ControlPlane.Port)

	if metricsServer != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	wsDone := make(chan error, 1)
	go func() {
		logger.Info("hot-reload transport listening", "port", cfg.Server.Port, "path", "/ws")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wsDone <- err
			return
		}
		wsDone <- nil
	}()

	adminDone := make(chan error, 1)
	go func() {
		adminDone <- adminServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("transport shutdown error", "error", err)
		}
		if err := <-adminDone; err != nil {
			logger.Error("admin API shutdown error", "error", err)
		}
		logger.Info("Server stopped gracefully")

	case err := <-wsDone:
		signal.Stop(sigChan)
		cancel()
		if err != nil {
			logger.Error("transport server error", "error", err)
			return err
		}

	case err := <-adminDone:
		signal.Stop(sigChan)
		cancel()
		if err != nil {
			logger.Error("admin API server error", "error", err)
			return err
		}
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
