// Package circuitbreaker guards upstream provider calls with a
// sony/gobreaker circuit breaker. Each provider gets its own Breaker.
//
// State transitions:
//
//	Closed → Open        when consecutive failures ≥ FailureThreshold
//	Open   → HalfOpen   after Timeout elapses
//	HalfOpen → Closed   when MaxRequests probes succeed
//	HalfOpen → Open     on any failure
//
// A provider answering 4xx (other than 429) is healthy; the request was at
// fault, so such errors are returned to the caller but counted as successes.
// Errors that arrive after the caller's context is done are not counted.
package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/connectlist/contentgw/internal/logging"
	"github.com/connectlist/contentgw/internal/metrics"
	"github.com/connectlist/contentgw/providers"
)

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open or the half-open probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Defaults applied for zero values in Settings.
const (
	DefaultFailureThreshold = 5
	DefaultTimeout          = 30 * time.Second
	DefaultMaxRequests      = 1
)

// Settings configures a Breaker.
type Settings struct {
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = DefaultMaxRequests
	}
	return s
}

// Breaker guards a single upstream provider.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[json.RawMessage]
}

// New creates a Breaker for the named provider.
func New(name string, s Settings) *Breaker {
	s = s.withDefaults()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Info("circuit breaker state change",
				"provider", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		IsSuccessful: isSuccessful,
	})
	return &Breaker{name: name, cb: cb}
}

// Name returns the guarded provider's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state as "closed", "open" or "half-open".
func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn unless the circuit is open. An error returned once ctx is
// done belongs to the caller and is not counted against the provider.
func (b *Breaker) Execute(ctx context.Context, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	out, err := b.cb.Execute(func() (json.RawMessage, error) {
		out, err := fn()
		if err != nil && ctx.Err() != nil {
			return out, &callerDone{err: err}
		}
		return out, err
	})
	var done *callerDone
	if errors.As(err, &done) {
		return out, done.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRejections.WithLabelValues(b.name).Inc()
		return nil, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return out, err
}

// callerDone marks an error produced after the caller gave up.
type callerDone struct{ err error }

func (e *callerDone) Error() string { return e.err.Error() }
func (e *callerDone) Unwrap() error { return e.err }

func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var done *callerDone
	if errors.As(err, &done) {
		return true
	}
	var perr *providers.Error
	return errors.As(err, &perr) && perr.ClientError()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
