package api

import (
	"fmt"
	"time"

	"github.com/quietwire/quietwire/internal/api/auth"
	"github.com/quietwire/quietwire/internal/api/handlers"
)

// defaultJWTSecret is what a fresh config file ships with. Production
// deployments must override it; startup refuses to proceed otherwise.
const defaultJWTSecret = "change-me-quietwire-development-secret"

// APIConfig configures the relay HTTP server.
type APIConfig struct {
	// Port is the HTTP port for the API and WebSocket endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 15s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Zero disables it, which the WebSocket endpoint requires;
	// plain handlers are bounded by the route timeout middleware instead.
	// Default: 0
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWTSecret signs session tokens. Must be at least 32 characters and
	// must not be the shipped default when Production is true.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// TokenDuration is the session token lifetime.
	// Default: 168h (7 days)
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`

	// LowKeyThreshold is the one-time pre-key count below which verify
	// responses carry a replenish hint.
	// Default: 20
	LowKeyThreshold int64 `mapstructure:"low_key_threshold" yaml:"low_key_threshold"`

	// Production enables the stricter startup checks.
	Production bool `mapstructure:"production" yaml:"production"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.JWTSecret == "" {
		c.JWTSecret = defaultJWTSecret
	}
	if c.TokenDuration == 0 {
		c.TokenDuration = auth.DefaultTokenDuration
	}
	if c.LowKeyThreshold <= 0 {
		c.LowKeyThreshold = handlers.DefaultLowKeyThreshold
	}
}

// Validate checks the configuration for startup.
func (c *APIConfig) Validate() error {
	if len(c.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("jwt_secret must be at least %d characters", auth.MinSecretLength)
	}
	if c.Production && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("jwt_secret must be changed from the default in production")
	}
	if c.TokenDuration <= 0 {
		return fmt.Errorf("token_duration must be positive")
	}
	return nil
}

// TokenConfig derives the token service configuration.
func (c *APIConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:        c.JWTSecret,
		TokenDuration: c.TokenDuration,
	}
}
