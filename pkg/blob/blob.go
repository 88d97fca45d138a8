// Package blob is the opaque file-store collaborator of the relay. Clients
// upload encrypted attachments here and pass the returned reference inside
// their ciphertexts; the server never inspects the bytes.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no object exists for a reference.
var ErrNotFound = errors.New("blob not found")

// Store is the fixed interface the relay talks to. The production
// implementation is S3-compatible object storage; tests substitute an
// in-memory fake.
type Store interface {
	// Put stores the content under the given reference.
	Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error

	// Get returns a reader over the stored content and its content type.
	// The caller must close the reader.
	Get(ctx context.Context, ref string) (io.ReadCloser, string, error)

	// Delete removes the object. Deleting a missing reference is not an
	// error.
	Delete(ctx context.Context, ref string) error
}
