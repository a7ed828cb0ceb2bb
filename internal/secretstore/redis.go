package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	redisclient "github.com/buddyapp/buddy-client-go/internal/redis"
)

// RedisStore keeps secrets as plain redis strings. SET replaces the value in one step.
type RedisStore struct {
	client *redisclient.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, redisclient.SecretKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, redisclient.SecretKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisclient.SecretKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
