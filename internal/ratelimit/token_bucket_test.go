package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New("burst", 10, 5)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on request %d within burst", i+1)
		}
	}
}

func TestBlockWhenDepleted(t *testing.T) {
	l := New("depleted", 10, 2)
	l.Allow()
	l.Allow()
	if l.Allow() {
		t.Fatal("expected rate limit after burst exhausted")
	}
}

func TestRefillOverTime(t *testing.T) {
	l := New("refill", 1000, 1) // 1000 rps, burst 1
	l.Allow()                   // exhaust the burst
	time.Sleep(5 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("expected allow after refill")
	}
}

func TestWaitBlocksUntilToken(t *testing.T) {
	l := New("wait", 100, 1)
	l.Allow()
	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("expected Wait to block for a refill, took %s", elapsed)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New("ctx", 0.01, 1)
	l.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected Wait to fail once the context cannot be satisfied")
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := l.Wait(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestZeroRateIsUnlimited(t *testing.T) {
	l := New("unlimited", 0, 0)
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatalf("expected unlimited limiter to allow request %d", i+1)
		}
	}
}

func TestDefaultBurst(t *testing.T) {
	l := New("fractional", 2.5, 0)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("expected burst of 3 for 2.5 rps, blocked at %d", i+1)
		}
	}
	if l.Allow() {
		t.Fatal("expected fourth request to be limited")
	}
}

func TestStoreCreatesPerKeyLimiters(t *testing.T) {
	s := NewStore(100, 10)
	a := s.Get("key-a")
	for i := 0; i < 10; i++ {
		if !a.Allow() {
			t.Fatalf("expected allow on key-a request %d", i+1)
		}
	}
	if s.Get("key-a") != a {
		t.Fatal("expected Get to return the same limiter for a key")
	}
	// Key-b should have its own fresh bucket.
	if !s.Get("key-b").Allow() {
		t.Fatal("expected allow on key-b (fresh limiter)")
	}
}

func TestStoreSetOverrides(t *testing.T) {
	s := NewStore(100, 10)
	custom := New("tmdb", 1, 1)
	s.Set("tmdb", custom)
	if s.Get("tmdb") != custom {
		t.Fatal("expected Set limiter to be returned by Get")
	}
}
