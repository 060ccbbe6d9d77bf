package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/DIG-Network/dig-propagation-server/internal/bytesize"
	"github.com/DIG-Network/dig-propagation-server/pkg/api"
)

// Config represents the propagation server configuration.
//
// This structure captures the static configuration of the server:
//   - Logging configuration
//   - Server settings (HTTP listener, TLS, shutdown timeout)
//   - Storage root for canonical stores and session staging
//   - Upload pipeline tuning (session/nonce/owner TTLs, max file size)
//   - Rate limiting for upload starts and fetches
//   - Datalayer endpoint for root history and permission checks
//   - Admin credentials for creating new stores
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DIGNODE_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Storage configures where stores and session staging directories live
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Server contains the HTTP API server configuration
	Server api.APIConfig `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin contains the credentials required to create a new store.
	// Uploads into existing stores are authorized per file by signature,
	// not by these credentials.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Upload tunes the upload session pipeline
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// RateLimit bounds request rates on the public surface
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// DataLayer points at the metadata service used for root history,
	// write permissions and manifest regeneration
	DataLayer DataLayerConfig `mapstructure:"datalayer" yaml:"datalayer"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StorageConfig configures the on-disk layout root.
type StorageConfig struct {
	// Root is the directory under which stores/ and tmp/sessions/ are kept.
	// Example: /var/lib/propagationd
	Root string `mapstructure:"root" validate:"required" yaml:"root"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminConfig holds the basic-auth credentials that gate creation of new
// stores. The password can also be supplied via DIGNODE_ADMIN_PASSWORD.
type AdminConfig struct {
	// Username is the basic-auth username
	// Default: "admin"
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the basic-auth password. Required before the server will
	// accept uploads that create a store.
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// UploadConfig tunes the upload session pipeline.
type UploadConfig struct {
	// SessionTTL is the sliding inactivity timeout for upload sessions.
	// Default: 5m
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`

	// NonceTTL is how long an issued upload nonce stays valid.
	// Default: 10m
	NonceTTL time.Duration `mapstructure:"nonce_ttl" yaml:"nonce_ttl"`

	// OwnerTTL is how long a confirmed write permission is cached.
	// Default: 3m
	OwnerTTL time.Duration `mapstructure:"owner_ttl" yaml:"owner_ttl"`

	// MaxFileSize caps the size of a single uploaded file.
	// Supports human-readable formats: "1GB", "512MB", "10Gi"
	// Default: 1GiB
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size,omitempty"`
}

// RateLimitConfig bounds request rates on the public surface. A zero
// request count disables that limiter.
type RateLimitConfig struct {
	// UploadStartRequests is the number of session starts allowed per
	// client IP within UploadStartWindow.
	// Default: 10
	UploadStartRequests int `mapstructure:"upload_start_requests" yaml:"upload_start_requests"`

	// UploadStartWindow is the window for UploadStartRequests.
	// Default: 15m
	UploadStartWindow time.Duration `mapstructure:"upload_start_window" yaml:"upload_start_window"`

	// FetchRequests is the number of fetches allowed per (ip, store, path)
	// within FetchWindow.
	// Default: 100
	FetchRequests int `mapstructure:"fetch_requests" yaml:"fetch_requests"`

	// FetchWindow is the window for FetchRequests.
	// Default: 15m
	FetchWindow time.Duration `mapstructure:"fetch_window" yaml:"fetch_window"`
}

// DataLayerConfig points at the external metadata service.
type DataLayerConfig struct {
	// Endpoint is the base URL of the datalayer HTTP API.
	// Example: http://localhost:8575
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// Timeout bounds each datalayer call.
	// Default: 5s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DIGNODE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  propagationd init\n\n"+
				"Or specify a custom config file:\n"+
				"  propagationd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  propagationd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file may carry the admin password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DIGNODE_ prefix and underscores.
	// Example: DIGNODE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DIGNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/propagationd/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also check for os.PathError when an explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "1Gi", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "propagationd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "propagationd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
