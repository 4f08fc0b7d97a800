// Package breaker wraps every repository call and external dependency
// lookup with a named circuit breaker plus a bounded retry/backoff policy,
// per component C4. Breakers are registered by logical dependency name
// ("repository", "xml_processing", "default", ...) and are safe for
// concurrent use by many callers.
package breaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/metrics"
)

// Config is the per-breaker tuning the spec's configuration surface
// enumerates under circuit_breaker.<name>.*.
type Config struct {
	FailureRateThreshold float64       // 0-100
	SlidingWindowSize    uint32        // carried from configuration but not read: ReadyToTrip rates all calls counted since the last state change
	MinCalls             uint32        // minimum calls in-window before a trip is considered
	WaitInOpen           time.Duration // time OPEN waits before probing HALF_OPEN
	HalfOpenCalls        uint32        // consecutive successes required to close from HALF_OPEN
	CallTimeout          time.Duration // per-call deadline; a timeout counts as a failure
	MaxRetries           uint64        // bounded retry attempts for transient failures (see Registry.Execute)
}

// DefaultConfig matches the spec's example dependency (repository): a
// generous window, moderate threshold, short open-state probation.
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold: 50,
		SlidingWindowSize:    20,
		MinCalls:             10,
		WaitInOpen:           30 * time.Second,
		HalfOpenCalls:        3,
		CallTimeout:          5 * time.Second,
		MaxRetries:           3,
	}
}

// Registry holds one named breaker per logical dependency.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*namedBreaker
}

type namedBreaker struct {
	cb  *gobreaker.CircuitBreaker
	cfg Config
}

// NewRegistry constructs an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*namedBreaker)}
}

// Register installs (or replaces) the breaker configuration for name.
// Must be called before the first Execute for that name in steady state,
// though Execute will lazily register DefaultConfig() if the name is
// unknown so a missing registration is never fatal.
func (r *Registry) Register(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[name] = newNamedBreaker(name, cfg)
}

func newNamedBreaker(name string, cfg Config) *namedBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenCalls,
		Interval:    0, // counts never reset on a timer while CLOSED; only on state transition
		Timeout:     cfg.WaitInOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinCalls {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			return failureRate >= cfg.FailureRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, gaugeValue(to))
			if to == gobreaker.StateOpen {
				metrics.RecordBreakerTrip(name)
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateClosed {
				metrics.RecordBreakerRecover(name)
			}
		},
	}
	return &namedBreaker{cb: gobreaker.NewCircuitBreaker(settings), cfg: cfg}
}

// gaugeValue maps a gobreaker state to the xmlgate_breaker_state convention
// (0=closed 1=half-open 2=open).
func gaugeValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

func (r *Registry) get(name string) *namedBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if nb, ok := r.breakers[name]; ok {
		return nb
	}
	nb := newNamedBreaker(name, DefaultConfig())
	r.breakers[name] = nb
	return nb
}

// State reports the current breaker state for name ("closed", "open",
// "half-open"), mainly for the status CLI/metrics surface.
func (r *Registry) State(name string) string {
	nb := r.get(name)
	switch nb.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Names returns every registered breaker name, sorted, for the status
// CLI/metrics surface to enumerate without knowing dependency names ahead
// of time.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Op is the unit of work a breaker-guarded call performs.
type Op func(ctx context.Context) (any, error)

// Execute runs op through the named breaker with retry/backoff for
// transient failures. If the breaker is not CLOSED/HALF_OPEN-permitting,
// fallback runs synchronously and the call never counts toward the
// breaker's window. Each retry attempt is itself a separate breaker call,
// so retries are visible to the sliding window rather than hidden behind
// a single Execute (see SPEC_FULL §13(c)).
func (r *Registry) Execute(ctx context.Context, name string, op Op, fallback func() (any, error)) (any, error) {
	nb := r.get(name)

	var lastErr error
	attempt := func() (any, error) {
		result, err := r.callOnce(ctx, nb, op)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Breaker itself refused the call: stop retrying immediately
			// and defer to fallback, matching "no underlying operation is
			// invoked while OPEN".
			return nil, backoff.Permanent(err)
		}
		lastErr = err
		return result, err
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), nb.cfg.MaxRetries)
	var result any
	err := backoff.Retry(func() error {
		var opErr error
		result, opErr = attempt()
		return opErr
	}, bo)

	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if fallback != nil {
			return fallback()
		}
		return nil, xgerrors.NewCircuitOpenError(name)
	}

	if lastErr != nil {
		return nil, xgerrors.NewPersistenceError("operation failed after retries", lastErr)
	}
	return nil, xgerrors.NewPersistenceError("operation failed after retries", err)
}

func (r *Registry) callOnce(ctx context.Context, nb *namedBreaker, op Op) (any, error) {
	return nb.cb.Execute(func() (any, error) {
		callCtx := ctx
		var cancel context.CancelFunc
		if nb.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, nb.cfg.CallTimeout)
			defer cancel()
		}

		type result struct {
			val any
			err error
		}
		done := make(chan result, 1)
		go func() {
			v, err := op(callCtx)
			done <- result{v, err}
		}()

		select {
		case <-callCtx.Done():
			return nil, xgerrors.NewTimeoutError("dependency call exceeded call_timeout")
		case r := <-done:
			return r.val, r.err
		}
	})
}
