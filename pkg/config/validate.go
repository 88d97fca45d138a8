package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for consistency before startup.
//
// Struct tags cover the field-level rules; the cross-field checks (token
// secret strength, database settings, blob requirements) are delegated to
// the owning sections.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := cfg.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if cfg.Blob.Enabled {
		if err := v.Struct(cfg.Blob.S3); err != nil {
			return fmt.Errorf("blob: %w", err)
		}
	}

	return nil
}
