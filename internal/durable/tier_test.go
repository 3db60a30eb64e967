package durable

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/connectlist/contentgw/internal/cache"
	"github.com/connectlist/contentgw/internal/metrics"
)

type failingStore struct {
	err    error
	blocks bool
}

func (f *failingStore) Get(ctx context.Context, _ cache.Key, _ time.Time) (json.RawMessage, error) {
	if f.blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, f.err
}

func (f *failingStore) Put(ctx context.Context, _ cache.Key, _ json.RawMessage, _ time.Time) error {
	if f.blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *failingStore) Close() error { return nil }

type recordingStore struct {
	expiresAt time.Time
}

func (r *recordingStore) Get(_ context.Context, _ cache.Key, _ time.Time) (json.RawMessage, error) {
	return nil, ErrNotFound
}

func (r *recordingStore) Put(_ context.Context, _ cache.Key, _ json.RawMessage, expiresAt time.Time) error {
	r.expiresAt = expiresAt
	return nil
}

func (r *recordingStore) Close() error { return nil }

func counterValue(t *testing.T, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.DurableFailures.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestTier_HitAndMiss(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tier := NewTier(store)
	key := cache.Normalize("movies", "search", "heat", nil)

	if got := tier.Fetch(context.Background(), key); got.Status != StatusMiss {
		t.Fatalf("expected miss, got %s", got.Status)
	}
	if err := tier.Save(context.Background(), key, json.RawMessage(`{"page":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := tier.Fetch(context.Background(), key)
	if got.Status != StatusHit {
		t.Fatalf("expected hit, got %s (%v)", got.Status, got.Err)
	}
	assertJSONEqual(t, got.Value, `{"page":1}`)
}

func TestTier_SaveStampsTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	tier := NewTier(store, WithClock(func() time.Time { return now }))

	if err := tier.Save(context.Background(), cache.Normalize("books", "search", "x", nil), json.RawMessage(`1`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if want := now.Add(24 * time.Hour); !store.expiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", store.expiresAt, want)
	}
	if tier.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", tier.TTL(), DefaultTTL)
	}
}

func TestTier_ExpiredRecordMisses(t *testing.T) {
	store := NewBadgerStoreFromDB(newInMemoryBadger(t))
	now := time.Now()
	clock := func() time.Time { return now }
	tier := NewTier(store, WithTTL(time.Hour), WithClock(clock))
	key := cache.Normalize("people", "details", "1", nil)

	if err := tier.Save(context.Background(), key, json.RawMessage(`1`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	now = now.Add(time.Hour)
	if got := tier.Fetch(context.Background(), key); got.Status != StatusMiss {
		t.Fatalf("expected miss at expiry, got %s", got.Status)
	}
}

func TestTier_FailuresAreExplicit(t *testing.T) {
	boom := errors.New("connection refused")
	tier := NewTier(&failingStore{err: boom})
	key := cache.Normalize("games", "search", "doom", nil)

	beforeGet := counterValue(t, "get")
	got := tier.Fetch(context.Background(), key)
	if got.Status != StatusFailure {
		t.Fatalf("expected failure, got %s", got.Status)
	}
	if got.Err == nil || !errors.Is(got.Err, boom) || got.Err.Op != "get" {
		t.Fatalf("expected wrapped get failure, got %v", got.Err)
	}
	if counterValue(t, "get") != beforeGet+1 {
		t.Error("expected get failure to be counted")
	}

	err := tier.Save(context.Background(), key, json.RawMessage(`1`))
	var tf *TierFailure
	if !errors.As(err, &tf) || tf.Op != "put" || !errors.Is(err, boom) {
		t.Fatalf("expected put TierFailure, got %v", err)
	}
}

func TestTier_TimeoutBoundsSlowStore(t *testing.T) {
	tier := NewTier(&failingStore{blocks: true}, WithTimeout(20*time.Millisecond))
	key := cache.Normalize("videos", "search", "slow", nil)

	start := time.Now()
	got := tier.Fetch(context.Background(), key)
	if got.Status != StatusFailure || !errors.Is(got.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline failure, got %s (%v)", got.Status, got.Err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout did not bound the store call")
	}
}

func TestNoopStore(t *testing.T) {
	tier := NewTier(NoopStore{})
	key := cache.Normalize("movies", "search", "x", nil)
	if err := tier.Save(context.Background(), key, json.RawMessage(`1`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := tier.Fetch(context.Background(), key); got.Status != StatusMiss {
		t.Fatalf("expected noop store to miss, got %s", got.Status)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[Status]string{StatusHit: "hit", StatusMiss: "miss", StatusFailure: "failure", Status(9): "unknown"} {
		if s.String() != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
