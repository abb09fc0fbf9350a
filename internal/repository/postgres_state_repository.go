package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/edtsuite/timetable-core/pkg/config"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

// PostgresStateRepository stores state records in a key/blob table:
//
//	CREATE TABLE timetable_states (
//	    key        TEXT PRIMARY KEY,
//	    value      JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	)
type PostgresStateRepository struct {
	db *sqlx.DB
}

// NewPostgresStateRepository constructs the repository.
func NewPostgresStateRepository(db *sqlx.DB) *PostgresStateRepository {
	return &PostgresStateRepository{db: db}
}

// OpenPostgres dials Postgres from configuration.
func OpenPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return db, nil
}

// Load fetches the value stored under key.
func (r *PostgresStateRepository) Load(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM timetable_states WHERE key = $1`
	var value []byte
	if err := r.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("key %s not found", key))
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	return value, nil
}

// Save upserts the value under key.
func (r *PostgresStateRepository) Save(ctx context.Context, key string, value []byte) error {
	const query = `INSERT INTO timetable_states (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Clear removes every stored key.
func (r *PostgresStateRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetable_states`); err != nil {
		return fmt.Errorf("clear states: %w", err)
	}
	return nil
}
