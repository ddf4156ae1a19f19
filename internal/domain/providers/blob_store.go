package providers

import "context"

// BlobStore holds uploaded audio addressed by opaque path.
// Get returns a not found error when the path does not exist.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}
