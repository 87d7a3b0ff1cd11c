// Package storage declares the blob store contract shared by the checkpoint
// transport and the payload sink.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore reads and writes opaque blobs keyed by path. Put returns a URI
// describing where the blob landed. Writers must be atomic: a concurrent
// reader never observes a half-written object.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
