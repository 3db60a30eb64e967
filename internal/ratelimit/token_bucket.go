// Package ratelimit throttles outbound provider calls with a token bucket
// (golang.org/x/time/rate). Calls wait for a token instead of failing, so a
// burst of cache misses is smoothed rather than rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/connectlist/contentgw/internal/metrics"
)

// Limiter is a single token-bucket limiter for one provider.
type Limiter struct {
	name string
	l    *rate.Limiter
}

// New creates a Limiter allowing ratePerSecond requests/s with a burst
// capacity. ratePerSecond <= 0 disables limiting. If burst <= 0 it defaults
// to ratePerSecond rounded up (at least 1).
func New(name string, ratePerSecond float64, burst int) *Limiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = int(ratePerSecond)
		if float64(burst) < ratePerSecond {
			burst++
		}
		if burst < 1 {
			burst = 1
		}
	}
	return &Limiter{name: name, l: rate.NewLimiter(limit, burst)}
}

// Allow consumes one token without waiting and reports whether one was
// available.
func (l *Limiter) Allow() bool {
	return l.l.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.l.Allow() {
		return nil
	}
	start := time.Now()
	err := l.l.Wait(ctx)
	metrics.RateLimitWaits.WithLabelValues(l.name).Observe(time.Since(start).Seconds())
	return err
}

// Store maintains per-provider Limiter instances sharing one rate/burst.
type Store struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	rate     float64
	burst    int
}

// NewStore creates a Store whose per-key limiters share the same rate/burst.
func NewStore(ratePerSecond float64, burst int) *Store {
	return &Store{
		limiters: make(map[string]*Limiter),
		rate:     ratePerSecond,
		burst:    burst,
	}
}

// Get returns (creating if needed) the limiter for key.
func (s *Store) Get(key string) *Limiter {
	s.mu.RLock()
	l, ok := s.limiters[key]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.limiters[key]; ok {
		return l
	}
	l = New(key, s.rate, s.burst)
	s.limiters[key] = l
	return l
}

// Set installs a limiter for key, overriding the shared rate.
func (s *Store) Set(key string, l *Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[key] = l
}
