package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/connectlist/contentgw/internal/cache"
	"github.com/connectlist/contentgw/internal/metrics"
)

// Tier defaults.
const (
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 2 * time.Second
)

// Status is the outcome kind of a durable lookup.
type Status int

const (
	// StatusMiss means no fresh record exists.
	StatusMiss Status = iota
	// StatusHit means Lookup.Value holds a fresh record.
	StatusHit
	// StatusFailure means the store failed; Lookup.Err says why.
	StatusFailure
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Lookup is the result of Tier.Fetch.
type Lookup struct {
	Status Status
	Value  json.RawMessage
	Err    *TierFailure
}

// TierFailure wraps a store error. It never aborts a lookup: the orchestrator
// falls back to the next source and the error is only logged.
type TierFailure struct {
	Op  string
	Key cache.Key
	Err error
}

func (e *TierFailure) Error() string {
	return fmt.Sprintf("durable cache %s %s: %v", e.Op, e.Key.String(), e.Err)
}

func (e *TierFailure) Unwrap() error { return e.Err }

// Tier adapts a Store into the durable cache tier: it stamps expiry on writes,
// filters on freshness for reads and converts store errors into explicit
// failure outcomes.
type Tier struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// TierOption configures a Tier.
type TierOption func(*Tier)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) TierOption {
	return func(t *Tier) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTimeout bounds every store call. Zero disables the bound.
func WithTimeout(d time.Duration) TierOption {
	return func(t *Tier) { t.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TierOption {
	return func(t *Tier) { t.now = now }
}

// NewTier wraps store.
func NewTier(store Store, opts ...TierOption) *Tier {
	t := &Tier{
		store:   store,
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if c, ok := store.(clockSetter); ok {
		c.setClock(t.now)
	}
	return t
}

// clockSetter is implemented by stores that compute durations from
// expires_at themselves.
type clockSetter interface {
	setClock(now func() time.Time)
}

// TTL returns the expiry applied to writes.
func (t *Tier) TTL() time.Duration { return t.ttl }

// Fetch looks up a fresh record for key.
func (t *Tier) Fetch(ctx context.Context, key cache.Key) Lookup {
	ctx, cancel := t.bound(ctx)
	defer cancel()

	value, err := t.store.Get(ctx, key, t.now())
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("durable", "hit").Inc()
		return Lookup{Status: StatusHit, Value: value}
	case errors.Is(err, ErrNotFound):
		metrics.CacheLookups.WithLabelValues("durable", "miss").Inc()
		return Lookup{Status: StatusMiss}
	default:
		metrics.CacheLookups.WithLabelValues("durable", "failure").Inc()
		metrics.DurableFailures.WithLabelValues("get").Inc()
		return Lookup{Status: StatusFailure, Err: &TierFailure{Op: "get", Key: key, Err: err}}
	}
}

// Save writes value under key, expiring TTL from now. A non-nil result is
// always a *TierFailure.
func (t *Tier) Save(ctx context.Context, key cache.Key, value json.RawMessage) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()

	if err := t.store.Put(ctx, key, value, t.now().Add(t.ttl)); err != nil {
		metrics.DurableFailures.WithLabelValues("put").Inc()
		return &TierFailure{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (t *Tier) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}
