package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/reloadsync/reloadsync/internal/bytesize"
	"github.com/reloadsync/reloadsync/pkg/controlplane/api"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible
// defaults. Zero values (0, "", false, nil) are replaced with defaults;
// explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applySessionDefaults(&cfg.Session)
	cfg.ControlPlane.ApplyDefaults()
	applyAdminDefaults(&cfg.Admin)
	applyMetricsDefaults(&cfg.Metrics)
	if cfg.Store.Enabled {
		cfg.Store.ApplyDefaults()
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry and Pyroscope defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for tracing)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Insecure defaults to false; operators must opt into a non-TLS
	// collector connection explicitly.

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope continuous profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyServerDefaults sets the hot-reload WebSocket server's defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MessageSizeLimit == 0 {
		cfg.MessageSizeLimit = 10 * bytesize.MiB
	}
}

// applySessionDefaults sets session lifecycle policy defaults.
func applySessionDefaults(cfg *SessionConfig) {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 8 * time.Hour
	}
	if cfg.EvictionInterval == 0 {
		cfg.EvictionInterval = time.Minute
	}
	if cfg.MetricsRingCapacity == 0 {
		cfg.MetricsRingCapacity = 50
	}
}

// applyAdminDefaults sets the bootstrap admin operator account defaults.
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	// PasswordHash has no default: an empty hash means the admin API
	// rejects all login attempts until 'reloadsyncd init' generates one.
}

// applyMetricsDefaults sets Prometheus metrics HTTP server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with every default applied, suitable
// for a freshly generated configuration file or for running without one.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// InitConfig writes a sample configuration file to the default location,
// generating a random admin password and JWT secret. It returns the path
// written to. If force is false and a file already exists there, it
// returns an error instead of overwriting it.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a sample configuration file to path, generating
// a random admin password and JWT secret. The generated password is
// printed to stdout once since PasswordHash in the file cannot be
// reversed back into it.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()

	password, err := api.GenerateRandomPassword()
	if err != nil {
		return "", fmt.Errorf("failed to generate admin password: %w", err)
	}
	passwordHash, err := api.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin password: %w", err)
	}
	cfg.Admin.PasswordHash = passwordHash

	secret, err := api.GenerateJWTSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.ControlPlane.JWT.Secret = secret

	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}

	fmt.Printf("Generated admin credentials:\n  Username: %s\n  Password: %s\n", cfg.Admin.Username, password)
	fmt.Println("Save this password now; it is not stored anywhere and cannot be recovered.")

	return path, nil
}
