// Package config loads and validates the relay configuration from file,
// environment, and defaults.
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

	"github.com/quietwire/quietwire/pkg/api"
	"github.com/quietwire/quietwire/pkg/blob"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

// Config represents the QuietWire relay configuration.
//
// This structure captures the static configuration of the relay server:
//   - Logging configuration
//   - Server settings (port, timeouts, token secret)
//   - Database connection (SQLite or PostgreSQL)
//   - Blob storage (S3-compatible, optional)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (QUIETWIRE_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the relational store (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// API contains the HTTP server configuration, including the session
	// token secret and lifetime.
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Blob configures the S3-compatible attachment store. When disabled,
	// the file endpoints respond 503.
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`
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

// BlobConfig wraps the S3 settings with an enable switch.
type BlobConfig struct {
	// Enabled controls whether the attachment store is wired up.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// S3 holds the bucket connection settings. Only validated when
	// Enabled is true.
	S3 blob.S3Config `mapstructure:"s3" validate:"-" yaml:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound || hasEnvOverrides() {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because the file carries the token secret and DB password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the QUIETWIRE_ prefix and underscores.
	// Example: QUIETWIRE_API_JWT_SECRET=...
	v.SetEnvPrefix("QUIETWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be known to viper for AutomaticEnv to surface them during
	// Unmarshal.
	for _, key := range envBoundKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envBoundKeys are the settings that may be supplied purely through the
// environment in container deployments without any config file.
var envBoundKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"shutdown_timeout",
	"database.type",
	"database.sqlite.path",
	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.database",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.sslmode",
	"api.port",
	"api.jwt_secret",
	"api.token_duration",
	"api.low_key_threshold",
	"api.production",
	"blob.enabled",
	"blob.s3.endpoint",
	"blob.s3.region",
	"blob.s3.bucket",
	"blob.s3.access_key_id",
	"blob.s3.secret_access_key",
	"blob.s3.force_path_style",
	"blob.s3.key_prefix",
}

// hasEnvOverrides reports whether any QUIETWIRE_* variable is present.
func hasEnvOverrides() bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "QUIETWIRE_") {
			return true
		}
	}
	return false
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "168h" and the
// day-suffixed form "7d" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// ParseDuration parses a duration of the form `\d+[smhd]` as well as the
// standard time.ParseDuration syntax. The "d" suffix means days.
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		var n int64
		if _, err := fmt.Sscanf(days, "%d", &n); err != nil || n < 0 || days != fmt.Sprintf("%d", n) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quietwire")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "quietwire")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
