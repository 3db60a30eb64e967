// Package durable implements the long-lived cache tier: a Store backend
// (SQLite, Postgres or Badger) and the Tier adapter the orchestrator talks to.
package durable

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/connectlist/contentgw/internal/cache"
)

// ErrNotFound is returned by Store.Get when no fresh record exists.
var ErrNotFound = errors.New("durable: record not found")

// Store persists cache records keyed by (provider, endpoint, params) with an
// expiry. Get only returns records with expires_at > now.
type Store interface {
	Get(ctx context.Context, key cache.Key, now time.Time) (json.RawMessage, error)
	Put(ctx context.Context, key cache.Key, value json.RawMessage, expiresAt time.Time) error
	Close() error
}

// Purger is implemented by stores that keep expired rows until they are
// deleted explicitly. Badger drops expired keys on its own.
type Purger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// NoopStore is used when the durable tier is disabled. Every Get misses.
type NoopStore struct{}

func (NoopStore) Get(_ context.Context, _ cache.Key, _ time.Time) (json.RawMessage, error) {
	return nil, ErrNotFound
}

func (NoopStore) Put(_ context.Context, _ cache.Key, _ json.RawMessage, _ time.Time) error {
	return nil
}

func (NoopStore) Close() error { return nil }
