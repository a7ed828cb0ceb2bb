package secretstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/config"
	"github.com/buddyapp/buddy-client-go/internal/database"
	redisclient "github.com/buddyapp/buddy-client-go/internal/redis"
)

// Open builds the store selected by cfg. The returned close func releases
// backend connections and is never nil.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	noop := func() error { return nil }

	var (
		store   Store
		closeFn = noop
	)

	switch cfg.SecretStore {
	case config.SecretStoreMemory:
		store = NewMemoryStore()

	case config.SecretStoreFile, "":
		dir := cfg.SecretStorePath
		if dir == "" {
			var err error
			if dir, err = DefaultDir(cfg.AppIdentifier); err != nil {
				return nil, noop, err
			}
		}
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, noop, err
		}
		store = fs

	case config.SecretStoreRedis:
		client, err := redisclient.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		store = NewRedisStore(client)
		closeFn = client.Close

	case config.SecretStorePostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect database: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(ctx, config.StorePingTimeout)
		defer cancel()
		if err := db.Migrate(migrateCtx); err != nil {
			db.Close()
			return nil, noop, err
		}
		store = NewPostgresStore(db)
		closeFn = db.Close

	default:
		return nil, noop, fmt.Errorf("unknown secret store %q", cfg.SecretStore)
	}

	if cfg.EncryptionKey != "" {
		enc, err := NewEncryptedStore(store, cfg.EncryptionKey)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		store = enc
	}

	log.Debug().
		Str("store", cfg.SecretStore).
		Bool("encrypted", cfg.EncryptionKey != "").
		Msg("secret store opened")

	return store, closeFn, nil
}
