// Package cache provides the cache key type, the CacheEntry shape shared by both
// cache tiers, and the in-process hot tier (Memory).
package cache

import (
	"encoding/json"
	"time"
)

// Default hot tier bounds.
const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

// Entry is a cached provider payload. An entry is valid iff now < ExpiresAt.
type Entry struct {
	Key       Key
	Value     json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Valid reports whether the entry is still fresh at now.
func (e Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// HotTier is the interface the orchestrator uses for the in-process tier.
type HotTier interface {
	Lookup(key Key) (Entry, bool)
	Insert(key Key, value json.RawMessage) Entry
	Len() int
	Clear()
}
