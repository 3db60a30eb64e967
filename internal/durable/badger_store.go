package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/connectlist/contentgw/internal/cache"
)

const badgerKeyPrefix = "api_cache:"

type badgerRecord struct {
	Response  json.RawMessage `json:"response"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// BadgerStore keeps cache records in an embedded BadgerDB. Entries carry a
// native TTL so Badger reclaims them; Get also checks expires_at because the
// native TTL has one-second resolution.
type BadgerStore struct {
	db    *badger.DB
	owned bool
	now   func() time.Time
}

// NewBadgerStore opens (or creates) a BadgerDB at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger directory is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger cache store: %w", err)
	}
	return &BadgerStore{db: db, owned: true, now: time.Now}, nil
}

// NewBadgerStoreFromDB wraps a database owned by the caller. Close leaves it open.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

// setClock makes the native TTL follow the same clock as expires_at.
func (s *BadgerStore) setClock(now func() time.Time) { s.now = now }

func badgerKey(key cache.Key) []byte {
	return []byte(badgerKeyPrefix + key.String())
}

// Get returns the response stored under key if it expires after now.
func (s *BadgerStore) Get(_ context.Context, key cache.Key, now time.Time) (json.RawMessage, error) {
	var rec badgerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache record: %w", err)
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	return rec.Response, nil
}

// Put overwrites the record for key.
func (s *BadgerStore) Put(_ context.Context, key cache.Key, value json.RawMessage, expiresAt time.Time) error {
	data, err := json.Marshal(badgerRecord{Response: value, ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}
	entry := badger.NewEntry(badgerKey(key), data)
	if ttl := expiresAt.Sub(s.now()); ttl > 0 {
		// Round up so the native TTL never fires before expires_at.
		entry = entry.WithTTL(ttl + time.Second)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("write cache record: %w", err)
	}
	return nil
}

// Close closes the database if the store opened it.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}
