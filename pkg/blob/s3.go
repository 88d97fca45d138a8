package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/quietwire/quietwire/pkg/metrics"
)

// S3Config contains configuration for the S3-backed blob store.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// ForcePathStyle addresses the bucket in the URL path instead of the
	// hostname. Required by MinIO and most self-hosted S3 endpoints.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// S3Store implements Store using Amazon S3 or S3-compatible storage.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Store creates a blob store over the configured bucket. The bucket
// must already exist; this does not create it.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3Store) key(ref string) string {
	return s.keyPrefix + ref
}

// Put stores the content under the given reference.
func (s *S3Store) Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(ref)),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	start := time.Now()
	_, err := s.client.PutObject(ctx, input)
	metrics.ObserveBlobOp("put", start, err)
	if err != nil {
		return fmt.Errorf("failed to store blob %q: %w", ref, err)
	}
	return nil
}

// Get returns a reader over the stored content and its content type.
func (s *S3Store) Get(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	metrics.ObserveBlobOp("get", start, err)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to fetch blob %q: %w", ref, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return out.Body, contentType, nil
}

// Delete removes the object. S3 DeleteObject succeeds for missing keys, so
// deleting an already-removed reference is naturally idempotent.
func (s *S3Store) Delete(ctx context.Context, ref string) error {
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	metrics.ObserveBlobOp("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", ref, err)
	}
	return nil
}

var _ Store = (*S3Store)(nil)
