// Package metrics registers the Prometheus metrics used by contentgw.
// All metrics are registered on the default registry at package init; the
// server mounts promhttp.Handler() at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache tier metrics.
var (
	// CacheLookups counts tier lookups labelled by tier ("hot", "durable") and
	// result ("hit", "miss", "failure").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgw_cache_lookups_total",
			Help: "Total cache tier lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// HotTierEntries is the number of entries held by the hot tier after the
	// last insert.
	HotTierEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentgw_hot_tier_entries",
			Help: "Entries currently held by the in-process cache tier.",
		},
	)

	// DurableFailures counts swallowed durable tier errors by operation
	// ("get", "put").
	DurableFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgw_durable_failures_total",
			Help: "Durable cache tier errors that were logged and swallowed.",
		},
		[]string{"op"},
	)

	// LookupsResolved counts orchestrated lookups by content type and the
	// source that answered ("hot", "durable", "provider", "error").
	LookupsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgw_lookups_total",
			Help: "Fetch-or-populate lookups by content type and resolving source.",
		},
		[]string{"content_type", "source"},
	)
)

// Upstream provider metrics.
var (
	// ProviderRequests counts outbound provider calls by provider and status
	// class ("2xx", "4xx", "5xx", "transport").
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgw_provider_requests_total",
			Help: "Outbound provider requests by provider and status class.",
		},
		[]string{"provider", "status"},
	)

	// ProviderDuration observes outbound provider latency in seconds.
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentgw_provider_request_duration_seconds",
			Help:    "Outbound provider request duration in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// CircuitBreakerState tracks per-provider breaker state:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contentgw_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed 1=open 2=half_open).",
		},
		[]string{"provider"},
	)

	// CircuitBreakerRejections counts calls refused because the breaker was open.
	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgw_circuit_breaker_rejections_total",
			Help: "Provider calls rejected by an open circuit breaker.",
		},
		[]string{"provider"},
	)

	// RateLimitWaits observes time spent waiting on the outbound limiter.
	RateLimitWaits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentgw_rate_limit_wait_seconds",
			Help:    "Time spent waiting for an outbound rate-limit token.",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"provider"},
	)
)

// HTTP surface metrics.
var (
	// HTTPRejections counts inbound requests rejected before reaching a handler,
	// labelled by reason ("unauthorized", "forbidden", "rate_limited", "invalid_request").
	HTTPRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgw_http_rejections_total",
			Help: "Inbound requests rejected by middleware or validation.",
		},
		[]string{"reason"},
	)
)
