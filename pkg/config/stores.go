package config

import (
	"context"
	"fmt"

	"github.com/quietwire/quietwire/pkg/blob"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

// CreateStore opens the relational store described by the configuration
// and runs migrations.
func (c *Config) CreateStore() (store.Store, error) {
	s, err := store.New(&c.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// CreateBlobStore builds the attachment store, or returns nil when blob
// storage is disabled.
func (c *Config) CreateBlobStore(ctx context.Context) (blob.Store, error) {
	if !c.Blob.Enabled {
		return nil, nil
	}

	s, err := blob.NewS3Store(ctx, c.Blob.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}
	return s, nil
}
