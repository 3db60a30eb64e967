package cache

import (
	"bytes"
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// Memory is the hot tier: an insertion-ordered sequence of entries bounded by
// capacity and TTL. Expiry is enforced lazily, on Insert (front sweep) and on
// Lookup (stale matches are misses); there is no background timer.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	entries  *list.List // of *Entry, oldest at Front
}

// Option configures a Memory.
type Option func(*Memory)

// WithClock replaces time.Now. Tests use it to move time deterministically.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a hot tier holding at most capacity entries for ttl each.
// Non-positive values fall back to DefaultCapacity and DefaultTTL.
func NewMemory(capacity int, ttl time.Duration, opts ...Option) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup returns the newest entry stored under key, or false if there is none
// or it is older than the TTL. Lookup never mutates the sequence. The returned
// Value is a copy the caller may modify.
func (m *Memory) Lookup(key Key) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for elem := m.entries.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*Entry)
		if entry.Key != key {
			continue
		}
		// Older duplicates are at least as old as this one.
		if m.expired(entry, now) {
			return Entry{}, false
		}
		return entry.detached(), true
	}
	return Entry{}, false
}

// Insert appends a fresh entry and then sweeps the front of the sequence until
// it holds at most capacity entries and the oldest one is still fresh. value
// is copied; neither it nor the returned Value aliases the stored bytes.
func (m *Memory) Insert(key Key, value json.RawMessage) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := &Entry{
		Key:       key,
		Value:     json.RawMessage(bytes.Clone(value)),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.entries.PushBack(entry)

	for front := m.entries.Front(); front != nil; front = m.entries.Front() {
		if m.entries.Len() <= m.capacity && !m.expired(front.Value.(*Entry), now) {
			break
		}
		m.entries.Remove(front)
	}
	return entry.detached()
}

// Len returns the number of entries currently held, stale ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Clear removes all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Init()
}

// Stats is a point-in-time view of the hot tier.
type Stats struct {
	Entries   int           `json:"entries"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"ttl_ns"`
	OldestAge time.Duration `json:"oldest_age_ns"`
}

// Stats returns the current size and bounds.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Entries: m.entries.Len(), Capacity: m.capacity, TTL: m.ttl}
	if front := m.entries.Front(); front != nil {
		s.OldestAge = m.now().Sub(front.Value.(*Entry).CreatedAt)
	}
	return s
}

// detached returns a copy of e that shares no bytes with the stored entry.
func (e *Entry) detached() Entry {
	out := *e
	out.Value = json.RawMessage(bytes.Clone(e.Value))
	return out
}

// expired must be called with m.mu held.
func (m *Memory) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) >= m.ttl
}
