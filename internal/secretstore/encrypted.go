package secretstore

import (
	"context"
	"fmt"

	"github.com/buddyapp/buddy-client-go/internal/util"
)

// EncryptedStore seals values with AES-256-GCM before handing them to the wrapped store.
type EncryptedStore struct {
	inner Store
	key   []byte
}

var _ Store = (*EncryptedStore)(nil)

func NewEncryptedStore(inner Store, hexKey string) (*EncryptedStore, error) {
	key, err := util.ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return &EncryptedStore{inner: inner, key: key}, nil
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := util.Open(s.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: open secret %q: %w", ErrCorrupt, key, err)
	}
	return plaintext, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := util.Seal(s.key, value)
	if err != nil {
		return fmt.Errorf("seal secret %q: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
