package config

import (
	"strings"
	"time"

	"github.com/DIG-Network/dig-propagation-server/internal/bytesize"
	"github.com/DIG-Network/dig-propagation-server/pkg/api"
	"github.com/DIG-Network/dig-propagation-server/pkg/noncecache"
	"github.com/DIG-Network/dig-propagation-server/pkg/ownercache"
	"github.com/DIG-Network/dig-propagation-server/pkg/session"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminDefaults(&cfg.Admin)
	applyUploadDefaults(&cfg.Upload)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyDataLayerDefaults(&cfg.DataLayer)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyServerDefaults sets HTTP API server defaults.
func applyServerDefaults(cfg *api.APIConfig) {
	cfg.ApplyDefaults()
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAdminDefaults sets admin credential defaults.
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	// Password has no default. Without one, store creation is refused.
}

// applyUploadDefaults sets upload pipeline defaults.
func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.NonceTTL == 0 {
		cfg.NonceTTL = noncecache.DefaultTTL
	}
	if cfg.OwnerTTL == 0 {
		cfg.OwnerTTL = ownercache.DefaultTTL
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = bytesize.GiB
	}
}

// applyRateLimitDefaults sets rate limiter defaults.
func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.UploadStartRequests == 0 {
		cfg.UploadStartRequests = 10
	}
	if cfg.UploadStartWindow == 0 {
		cfg.UploadStartWindow = 15 * time.Minute
	}
	if cfg.FetchRequests == 0 {
		cfg.FetchRequests = 100
	}
	if cfg.FetchWindow == 0 {
		cfg.FetchWindow = 15 * time.Minute
	}
}

// applyDataLayerDefaults sets datalayer client defaults.
func applyDataLayerDefaults(cfg *DataLayerConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	// Endpoint has no default. Without one, the server falls back to the
	// local validator and refuses operations that need root history.
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Storage: StorageConfig{
			Root: "/var/lib/propagationd",
		},
		Admin: AdminConfig{
			Username: "admin",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
