package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/connectlist/contentgw/internal/cache"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore keeps cache records in the api_cache table of SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore opens a SQLite-backed store. dsn can be a file path or a
// SQLite DSN; empty means contentgw-cache.db in the working directory.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "contentgw-cache.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache store: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres-backed store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres cache store: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s cache store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS api_cache (
	provider TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	params TEXT NOT NULL,
	response TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (provider, endpoint, params)
);
CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);`

	if s.dialect == dialectPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS api_cache (
	provider TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	params TEXT NOT NULL,
	response JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider, endpoint, params)
);
CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s cache schema: %w", s.dialect, err)
	}
	return nil
}

// Get returns the response stored under key if it expires after now.
func (s *SQLStore) Get(ctx context.Context, key cache.Key, now time.Time) (json.RawMessage, error) {
	query := `SELECT response FROM api_cache
	WHERE provider = ? AND endpoint = ? AND params = ? AND expires_at > ?`
	if s.dialect == dialectPostgres {
		query = `SELECT response::text FROM api_cache
		WHERE provider = $1 AND endpoint = $2 AND params = $3 AND expires_at > $4`
	}

	var response string
	err := s.db.QueryRowContext(ctx, query,
		key.Provider,
		key.Endpoint,
		key.StorageParams(),
		now.UTC(),
	).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache record: %w", err)
	}
	return json.RawMessage(response), nil
}

// Put upserts the record for key. Concurrent writers race; the last one wins.
func (s *SQLStore) Put(ctx context.Context, key cache.Key, value json.RawMessage, expiresAt time.Time) error {
	query := `INSERT INTO api_cache(provider, endpoint, params, response, expires_at, created_at)
	VALUES(?, ?, ?, ?, ?, ?)
	ON CONFLICT(provider, endpoint, params) DO UPDATE SET
		response = excluded.response,
		expires_at = excluded.expires_at,
		created_at = excluded.created_at`
	if s.dialect == dialectPostgres {
		query = `INSERT INTO api_cache(provider, endpoint, params, response, expires_at, created_at)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT(provider, endpoint, params) DO UPDATE SET
			response = excluded.response,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`
	}

	_, err := s.db.ExecContext(ctx, query,
		key.Provider,
		key.Endpoint,
		key.StorageParams(),
		string(value),
		expiresAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write cache record: %w", err)
	}
	return nil
}

// DeleteExpired removes records that expired at or before before and returns
// how many were deleted. It is a housekeeping entry point for operators; the
// cache tiers never call it.
func (s *SQLStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM api_cache WHERE expires_at <= ?`
	if s.dialect == dialectPostgres {
		query = `DELETE FROM api_cache WHERE expires_at <= $1`
	}
	res, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired cache records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted cache records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
