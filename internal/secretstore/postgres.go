package secretstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/buddyapp/buddy-client-go/internal/database"
)

type secretRow struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PostgresStore keeps one row per key. Set is a single-statement upsert.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db.DB}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row secretRow
	err := s.db.GetContext(ctx, &row, `
		SELECT key, value, updated_at FROM client_secrets WHERE key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select secret: %w", err)
	}
	return row.Value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_secrets (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM client_secrets WHERE key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
