// Package storage persists config history in PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iron-Ham/mplp/internal/configmgr"
)

const schema = `
CREATE TABLE IF NOT EXISTS config_history (
	key              TEXT        NOT NULL,
	version          INT         NOT NULL,
	value            JSONB,
	encrypted        BOOLEAN     NOT NULL DEFAULT FALSE,
	deleted          BOOLEAN     NOT NULL DEFAULT FALSE,
	rolled_back_from INT         NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (key, version)
)`

// ConfigStore is a configmgr.Persister backed by a config_history table.
// Values are stored as JSON, so numbers come back as float64.
type ConfigStore struct {
	db *pgxpool.Pool
}

// NewConfigStore wraps an existing pool.
func NewConfigStore(db *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{db: db}
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string) (*ConfigStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := NewConfigStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the config_history table if it does not exist.
func (s *ConfigStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate config_history: %w", err)
	}
	return nil
}

// Append inserts one change.
func (s *ConfigStore) Append(ctx context.Context, rec configmgr.Record) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("encode %s@%d: %w", rec.Key, rec.Version, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO config_history (key, version, value, encrypted, deleted, rolled_back_from, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Key, rec.Version, value, rec.Encrypted, rec.Deleted, rec.RolledBackFrom, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append %s@%d: %w", rec.Key, rec.Version, err)
	}
	return nil
}

// Load returns every change ordered by key then version.
func (s *ConfigStore) Load(ctx context.Context) ([]configmgr.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key, version, value, encrypted, deleted, rolled_back_from, created_at
		 FROM config_history ORDER BY key, version`)
	if err != nil {
		return nil, fmt.Errorf("load config history: %w", err)
	}
	defer rows.Close()

	var records []configmgr.Record
	for rows.Next() {
		var (
			rec configmgr.Record
			raw []byte
		)
		if err := rows.Scan(&rec.Key, &rec.Version, &raw, &rec.Encrypted, &rec.Deleted, &rec.RolledBackFrom, &rec.Timestamp); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.Value); err != nil {
				return nil, fmt.Errorf("decode %s@%d: %w", rec.Key, rec.Version, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes all but the newest keep versions of key.
func (s *ConfigStore) Prune(ctx context.Context, key string, keep int) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM config_history
		 WHERE key = $1 AND version <= (
			SELECT COALESCE(MAX(version), 0) - $2 FROM config_history WHERE key = $1
		 )`, key, keep)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", key, err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *ConfigStore) Close() {
	s.db.Close()
}

var _ configmgr.Persister = (*ConfigStore)(nil)
