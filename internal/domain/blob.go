package domain

import (
	"context"
	"io"
)

// BlobWriter stores an object in cold storage under the given key.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}
