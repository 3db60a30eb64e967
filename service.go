// Package contentgw is a content-metadata gateway: it fronts third-party
// metadata APIs (TMDB, RAWG, Google Books, YouTube) with a two-tier
// read-through cache.
//
// The Service type is the main entry point: create one with New, register
// providers with RegisterProvider, then call Search or GetDetails. Every
// lookup consults the in-process hot tier, then the durable tier, and only
// then the upstream provider. Lookups are configured via [Config], which can
// be loaded from a YAML or JSON file using [LoadConfig].
package contentgw

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/connectlist/contentgw/internal/cache"
	"github.com/connectlist/contentgw/internal/circuitbreaker"
	"github.com/connectlist/contentgw/internal/durable"
	"github.com/connectlist/contentgw/internal/logging"
	"github.com/connectlist/contentgw/internal/metrics"
	"github.com/connectlist/contentgw/internal/ratelimit"
	"github.com/connectlist/contentgw/providers"
)

// EventHookFunc is called asynchronously after a lookup completes or fails.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking hooks.
const (
	SubjectLookupCompleted = "contentgw.lookup.completed"
	SubjectLookupFailed    = "contentgw.lookup.failed"
)

// Source names the tier or upstream that answered a lookup.
type Source string

// Source constants.
const (
	SourceHot      Source = "hot"
	SourceDurable  Source = "durable"
	SourceProvider Source = "provider"
)

// FetchFunc performs the upstream call for a cache miss.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Service is the fetch-or-populate orchestrator.
type Service struct {
	mu        sync.RWMutex
	config    Config
	hot       *cache.Memory
	durable   *durable.Tier
	store     durable.Store
	registry  *providers.Registry
	breakers  map[string]*circuitbreaker.Breaker
	limiters  *ratelimit.Store
	hooks     []EventHookFunc
	now       func() time.Time
	seasonFan int
}

// Option customises a Service.
type Option func(*Service)

// WithClock sets the time source for both cache tiers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSeasonConcurrency bounds how many season requests a series details
// lookup issues at once.
func WithSeasonConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.seasonFan = n
		}
	}
}

// DefaultSeasonConcurrency is the default bound on concurrent season fetches.
const DefaultSeasonConcurrency = 4

// New creates a Service. store backs the durable tier; nil disables it. The
// Service takes ownership of store and closes it in Close.
func New(cfg Config, store durable.Store, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	d, err := cfg.Cache.durations()
	if err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if store == nil {
		store = durable.NoopStore{}
	}

	s := &Service{
		config:    cfg,
		store:     store,
		registry:  providers.NewRegistry(),
		breakers:  make(map[string]*circuitbreaker.Breaker),
		limiters:  ratelimit.NewStore(0, 0),
		now:       time.Now,
		seasonFan: DefaultSeasonConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hot = cache.NewMemory(cfg.Cache.Hot.Capacity, d.hotTTL, cache.WithClock(s.now))
	s.durable = durable.NewTier(store,
		durable.WithTTL(d.durableTTL),
		durable.WithTimeout(d.durableTimeout),
		durable.WithClock(s.now),
	)
	return s, nil
}

// RegisterProvider registers a provider, wrapping it with its circuit
// breaker and outbound rate limiter. A provider with the same name replaces
// the previous one.
func (s *Service) RegisterProvider(p providers.Provider) error {
	name := p.Name()
	pc, _ := s.config.Provider(name)

	settings := circuitbreaker.Settings{}
	if cb := pc.CircuitBreaker; cb != nil {
		timeout, err := parseDuration("circuit_breaker.timeout", cb.Timeout, circuitbreaker.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		settings = circuitbreaker.Settings{
			FailureThreshold: uint32(max(cb.FailureThreshold, 0)), //nolint:gosec
			MaxRequests:      uint32(max(cb.SuccessThreshold, 0)), //nolint:gosec
			Timeout:          timeout,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	breaker := circuitbreaker.New(name, settings)
	s.breakers[name] = breaker
	limiter := s.limiters.Get(name)
	if rl := pc.RateLimit; rl != nil {
		limiter = ratelimit.New(name, rl.RequestsPerSecond, rl.Burst)
		s.limiters.Set(name, limiter)
	}
	s.registry.Register(&guardedProvider{Provider: p, breaker: breaker, limiter: limiter})
	return nil
}

// AddHook registers an EventHookFunc that is called asynchronously on each
// completed or failed lookup. Multiple hooks may be registered; all are
// invoked for every event.
func (s *Service) AddHook(fn EventHookFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Provider returns a registered (guarded) provider by name.
func (s *Service) Provider(name string) (providers.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Get(name)
}

// ListProviders returns the names of all registered providers, sorted.
func (s *Service) ListProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.List()
}

// ProviderStatus describes a registered provider for the admin surface.
type ProviderStatus struct {
	Name    string `json:"name"`
	Breaker string `json:"circuit_breaker"`
}

// ProviderStatuses reports the breaker state of every registered provider.
func (s *Service) ProviderStatuses() []ProviderStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.registry.List()
	out := make([]ProviderStatus, 0, len(names))
	for _, name := range names {
		st := ProviderStatus{Name: name, Breaker: "closed"}
		if b, ok := s.breakers[name]; ok {
			st.Breaker = b.State()
		}
		out = append(out, st)
	}
	return out
}

// HotStats returns a snapshot of the hot tier.
func (s *Service) HotStats() cache.Stats {
	return s.hot.Stats()
}

// ClearHot drops every hot tier entry and returns how many were removed.
func (s *Service) ClearHot() int {
	n := s.hot.Len()
	s.hot.Clear()
	metrics.HotTierEntries.Set(0)
	return n
}

// GetConfig returns a copy of the configuration the Service was built with.
func (s *Service) GetConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Close releases the durable store.
func (s *Service) Close() error {
	return s.store.Close()
}

// FetchOrPopulate resolves key from the hot tier, then the durable tier, then
// fetch. A durable hit is promoted into the hot tier. A fetched value is
// inserted into the hot tier and written to the durable tier on a best-effort
// basis. Durable tier failures never surface; a fetch error is returned
// unchanged and leaves both tiers untouched.
func (s *Service) FetchOrPopulate(ctx context.Context, key cache.Key, fetch FetchFunc) (json.RawMessage, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	if e, ok := s.hot.Lookup(key); ok {
		metrics.CacheLookups.WithLabelValues("hot", "hit").Inc()
		s.completed(ctx, key, SourceHot, start)
		return e.Value, nil
	}
	metrics.CacheLookups.WithLabelValues("hot", "miss").Inc()

	res := s.durable.Fetch(ctx, key)
	switch res.Status {
	case durable.StatusHit:
		s.insertHot(key, res.Value)
		s.completed(ctx, key, SourceDurable, start)
		return res.Value, nil
	case durable.StatusFailure:
		log.Warn("durable cache read failed", "key", key.String(), "error", res.Err.Error())
	}

	value, err := fetch(ctx)
	if err != nil {
		metrics.LookupsResolved.WithLabelValues(key.Provider, "error").Inc()
		log.Error("lookup failed",
			"content_type", key.Provider,
			"endpoint", key.Endpoint,
			"query", key.Query,
			"latency_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		s.publishEvent(ctx, SubjectLookupFailed, map[string]interface{}{
			"trace_id":     logging.TraceIDFromContext(ctx),
			"content_type": key.Provider,
			"endpoint":     key.Endpoint,
			"query":        key.Query,
			"error":        err.Error(),
			"latency_ms":   time.Since(start).Milliseconds(),
			"timestamp":    time.Now(),
		})
		return nil, err
	}

	s.insertHot(key, value)
	if err := s.durable.Save(ctx, key, value); err != nil {
		log.Warn("durable cache write failed", "key", key.String(), "error", err.Error())
	}
	s.completed(ctx, key, SourceProvider, start)
	return value, nil
}

func (s *Service) insertHot(key cache.Key, value json.RawMessage) {
	s.hot.Insert(key, value)
	metrics.HotTierEntries.Set(float64(s.hot.Len()))
}

func (s *Service) completed(ctx context.Context, key cache.Key, src Source, start time.Time) {
	latency := time.Since(start)
	metrics.LookupsResolved.WithLabelValues(key.Provider, string(src)).Inc()
	logging.FromContext(ctx).Debug("lookup completed",
		"content_type", key.Provider,
		"endpoint", key.Endpoint,
		"source", string(src),
		"latency_ms", latency.Milliseconds(),
	)
	s.publishEvent(ctx, SubjectLookupCompleted, map[string]interface{}{
		"trace_id":     logging.TraceIDFromContext(ctx),
		"content_type": key.Provider,
		"endpoint":     key.Endpoint,
		"query":        key.Query,
		"source":       string(src),
		"latency_ms":   latency.Milliseconds(),
		"timestamp":    time.Now(),
	})
}

// publishEvent calls all registered hooks asynchronously.
func (s *Service) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	s.mu.RLock()
	hooks := make([]EventHookFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// Search looks up query for contentType. It returns nil on any failure,
// including an unknown content type, an empty query or a provider error; the
// error is logged.
func (s *Service) Search(ctx context.Context, query string, contentType ContentType) json.RawMessage {
	value, err := s.TrySearch(ctx, query, contentType)
	if err != nil {
		logging.FromContext(ctx).Warn("search returned no results",
			"content_type", string(contentType),
			"query", query,
			"error", err.Error(),
		)
		return nil
	}
	return value
}

// TrySearch is Search with the error returned instead of logged.
func (s *Service) TrySearch(ctx context.Context, query string, contentType ContentType) (json.RawMessage, error) {
	rt, ok := routes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, contentType)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	p, err := s.provider(rt.provider)
	if err != nil {
		return nil, err
	}
	req := rt.search(query)
	key := cache.Normalize(string(contentType), EndpointSearch, query, req.cacheParams(rt.queryParam))
	return s.FetchOrPopulate(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		return p.Request(ctx, req.path, req.params)
	})
}

// GetDetails returns the full record for id. Unlike Search it propagates
// every error: ErrUnknownContentType, ErrInvalidID, ErrProviderNotConfigured,
// *providers.Error, or circuitbreaker.ErrCircuitOpen.
//
// Series details embed every season: the seasons array of the show payload
// is replaced by the full season payloads, fetched concurrently.
func (s *Service) GetDetails(ctx context.Context, contentType ContentType, id string) (json.RawMessage, error) {
	rt, ok := routes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, contentType)
	}
	req, err := rt.details(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	p, err := s.provider(rt.provider)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(id)
	if contentType == Videos {
		query = req.params.Get("id")
	}
	key := cache.Normalize(string(contentType), EndpointDetails, query, req.cacheParams(""))
	return s.FetchOrPopulate(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		body, err := p.Request(ctx, req.path, req.params)
		if err != nil || contentType != Series {
			return body, err
		}
		return s.withSeasons(ctx, p, query, body)
	})
}

func (s *Service) provider(name string) (providers.Provider, error) {
	p, ok := s.Provider(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}
	return p, nil
}
