// Package session owns the live authorization token and its secret-store entry.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/secretstore"
)

// ChangeFunc observes token changes. present is false after invalidation.
type ChangeFunc func(token model.AuthorizationToken, present bool)

// State caches the current token and is the only writer of its store entry.
// Store writes and cache updates happen together under writeMu, so the cache
// always matches the last write that reached the store.
type State struct {
	store secretstore.Store
	key   string

	writeMu sync.Mutex
	mu      sync.RWMutex
	token   *model.AuthorizationToken

	hooksMu sync.RWMutex
	hooks   []ChangeFunc
}

type Option func(*State)

func WithOnChange(fn ChangeFunc) Option {
	return func(s *State) {
		s.hooks = append(s.hooks, fn)
	}
}

func New(store secretstore.Store, key string, opts ...Option) *State {
	s := &State{
		store: store,
		key:   key,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to run after every SetToken and every Invalidate
// that removed a token.
func (s *State) OnChange(fn ChangeFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Load reads the persisted token into the cache. A missing entry leaves the
// state empty. An entry that cannot be opened or decoded is deleted and
// treated as missing.
func (s *State) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.store.Get(ctx, s.key)
	switch {
	case errors.Is(err, secretstore.ErrNotFound):
		s.setCached(nil)
		return nil
	case errors.Is(err, secretstore.ErrCorrupt):
		s.discard(ctx, err)
		return nil
	case err != nil:
		s.setCached(nil)
		return apperrors.Storage(err)
	}

	var token model.AuthorizationToken
	if err := json.Unmarshal(data, &token); err != nil || token.AccessToken == "" {
		s.discard(ctx, err)
		return nil
	}

	s.setCached(&token)
	log.Debug().
		Time("expiresAt", token.ExpiresAt()).
		Msg("authorization token loaded")
	return nil
}

// discard drops an unreadable entry. Callers hold writeMu.
func (s *State) discard(ctx context.Context, cause error) {
	log.Warn().
		Err(cause).
		Str("key", s.key).
		Msg("discarding unreadable authorization token")
	s.setCached(nil)
	if err := s.store.Delete(ctx, s.key); err != nil {
		log.Error().Err(err).Str("key", s.key).Msg("failed to delete unreadable authorization token")
	}
}

// Token returns the cached token, if any.
func (s *State) Token() (model.AuthorizationToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil {
		return model.AuthorizationToken{}, false
	}
	return *s.token, true
}

// SetToken persists token and then caches it. When persisting fails the cache
// is still updated so the process keeps working, and the error is returned.
func (s *State) SetToken(ctx context.Context, token model.AuthorizationToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to encode authorization token", err)
	}

	var persistErr error
	s.writeMu.Lock()
	if err := s.store.Set(ctx, s.key, data); err != nil {
		log.Error().
			Err(err).
			Str("key", s.key).
			Msg("failed to persist authorization token")
		persistErr = apperrors.Storage(err)
	}
	s.setCached(&token)
	s.writeMu.Unlock()

	s.notify(token, true)
	return persistErr
}

// Invalidate deletes the entry and clears the cache. Calling it with no
// token present is a no-op.
func (s *State) Invalidate(ctx context.Context) error {
	var deleteErr error
	s.writeMu.Lock()
	_, had := s.Token()
	if err := s.store.Delete(ctx, s.key); err != nil {
		log.Error().
			Err(err).
			Str("key", s.key).
			Msg("failed to delete authorization token")
		deleteErr = apperrors.Storage(err)
	}
	s.setCached(nil)
	s.writeMu.Unlock()

	if had {
		log.Info().Msg("authorization token invalidated")
		s.notify(model.AuthorizationToken{}, false)
	}
	return deleteErr
}

func (s *State) setCached(token *model.AuthorizationToken) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *State) notify(token model.AuthorizationToken, present bool) {
	s.hooksMu.RLock()
	hooks := append([]ChangeFunc(nil), s.hooks...)
	s.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(token, present)
	}
}
