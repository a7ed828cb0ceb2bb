// Package secretstore persists opaque secret blobs under string keys.
package secretstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("secret not found")

// ErrCorrupt is returned by Get when an entry exists but cannot be opened.
var ErrCorrupt = errors.New("secret corrupt")

// Store is a durable key-value store for secrets.
// Set replaces an entry atomically; Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
