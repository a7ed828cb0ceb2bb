package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/secretstore"
)

const tokenKey = "io.buddy.test.session.authorizationToken"

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// gatedStore blocks Set until release is closed.
type gatedStore struct {
	*secretstore.MemoryStore
	setEntered chan struct{}
	release    chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	close(g.setEntered)
	<-g.release
	return g.MemoryStore.Set(ctx, key, value)
}

func sampleToken() model.AuthorizationToken {
	return model.AuthorizationToken{
		AccessToken:     "access-1",
		RefreshToken:    "refresh-1",
		ExpiryTimestamp: 1_900_000_000,
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing entry means no token", func(t *testing.T) {
		state := New(secretstore.NewMemoryStore(), tokenKey)
		require.NoError(t, state.Load(ctx))

		_, ok := state.Token()
		assert.False(t, ok)
	})

	t.Run("token survives a reload", func(t *testing.T) {
		store := secretstore.NewMemoryStore()
		first := New(store, tokenKey)
		require.NoError(t, first.SetToken(ctx, sampleToken()))

		second := New(store, tokenKey)
		require.NoError(t, second.Load(ctx))

		token, ok := second.Token()
		require.True(t, ok)
		assert.Equal(t, sampleToken(), token)
	})

	t.Run("persisted JSON uses camelCase keys", func(t *testing.T) {
		store := secretstore.NewMemoryStore()
		require.NoError(t, New(store, tokenKey).SetToken(ctx, sampleToken()))

		raw, err := store.Get(ctx, tokenKey)
		require.NoError(t, err)
		assert.JSONEq(t, `{"accessToken":"access-1","refreshToken":"refresh-1","expiryTimestamp":1900000000}`, string(raw))
	})

	t.Run("corrupt entry is discarded and deleted", func(t *testing.T) {
		store := secretstore.NewMemoryStore()
		require.NoError(t, store.Set(ctx, tokenKey, []byte("{not json")))

		state := New(store, tokenKey)
		require.NoError(t, state.Load(ctx))

		_, ok := state.Token()
		assert.False(t, ok)
		_, err := store.Get(ctx, tokenKey)
		assert.ErrorIs(t, err, secretstore.ErrNotFound)
	})

	t.Run("entry sealed with another key is discarded and deleted", func(t *testing.T) {
		inner := secretstore.NewMemoryStore()
		sealing, err := secretstore.NewEncryptedStore(inner, strings.Repeat("1f", 32))
		require.NoError(t, err)
		require.NoError(t, New(sealing, tokenKey).SetToken(ctx, sampleToken()))

		rotated, err := secretstore.NewEncryptedStore(inner, strings.Repeat("2e", 32))
		require.NoError(t, err)
		state := New(rotated, tokenKey)
		require.NoError(t, state.Load(ctx))

		_, ok := state.Token()
		assert.False(t, ok)
		_, err = inner.Get(ctx, tokenKey)
		assert.ErrorIs(t, err, secretstore.ErrNotFound)

		require.NoError(t, state.SetToken(ctx, sampleToken()))
		reloaded := New(rotated, tokenKey)
		require.NoError(t, reloaded.Load(ctx))
		token, ok := reloaded.Token()
		require.True(t, ok)
		assert.Equal(t, sampleToken(), token)
	})

	t.Run("store failure is returned as storage error", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", mock.Anything, tokenKey).Return(nil, errors.New("keychain locked"))

		err := New(store, tokenKey).Load(ctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))
		store.AssertExpectations(t)
	})
}

func TestSetToken(t *testing.T) {
	ctx := context.Background()

	t.Run("persistence failure still updates cache", func(t *testing.T) {
		store := new(MockStore)
		store.On("Set", mock.Anything, tokenKey, mock.Anything).Return(errors.New("disk full"))

		state := New(store, tokenKey)
		err := state.SetToken(ctx, sampleToken())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))

		token, ok := state.Token()
		require.True(t, ok)
		assert.Equal(t, "access-1", token.AccessToken)
		store.AssertExpectations(t)
	})

	t.Run("notifies change hooks", func(t *testing.T) {
		var seen []bool
		state := New(secretstore.NewMemoryStore(), tokenKey, WithOnChange(func(_ model.AuthorizationToken, present bool) {
			seen = append(seen, present)
		}))

		require.NoError(t, state.SetToken(ctx, sampleToken()))
		require.NoError(t, state.Invalidate(ctx))
		require.NoError(t, state.Invalidate(ctx))

		assert.Equal(t, []bool{true, false}, seen)
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("twice in a row is the same as once", func(t *testing.T) {
		store := secretstore.NewMemoryStore()
		state := New(store, tokenKey)
		require.NoError(t, state.SetToken(ctx, sampleToken()))

		require.NoError(t, state.Invalidate(ctx))
		require.NoError(t, state.Invalidate(ctx))

		_, ok := state.Token()
		assert.False(t, ok)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("on empty state is not an error", func(t *testing.T) {
		assert.NoError(t, New(secretstore.NewMemoryStore(), tokenKey).Invalidate(ctx))
	})

	t.Run("delete failure clears cache and reports", func(t *testing.T) {
		store := new(MockStore)
		store.On("Set", mock.Anything, tokenKey, mock.Anything).Return(nil)
		store.On("Delete", mock.Anything, tokenKey).Return(errors.New("io error"))

		state := New(store, tokenKey)
		require.NoError(t, state.SetToken(ctx, sampleToken()))

		err := state.Invalidate(ctx)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))
		_, ok := state.Token()
		assert.False(t, ok)
	})
}

func TestWritesAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		MemoryStore: secretstore.NewMemoryStore(),
		setEntered:  make(chan struct{}),
		release:     make(chan struct{}),
	}
	state := New(store, tokenKey)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, state.SetToken(ctx, sampleToken()))
	}()
	<-store.setEntered

	invalidated := make(chan struct{})
	go func() {
		defer close(invalidated)
		assert.NoError(t, state.Invalidate(ctx))
	}()

	select {
	case <-invalidated:
		t.Fatal("Invalidate finished while SetToken was still writing")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	wg.Wait()
	<-invalidated

	_, ok := state.Token()
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}
