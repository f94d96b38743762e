// Package breaker implements the circuit breaker (§4.3): a three-state
// (Closed/Open/HalfOpen) breaker that opens after a run of consecutive
// failures, cools down for a fixed reset duration, then allows a bounded
// number of half-open probes before closing again. This is a deliberate
// simplification of the teacher's adaptive rolling-window failure-rate
// breaker in libs/go/core/resilience/circuit_breaker.go: the state enum,
// mutex-guarded transition methods and metrics-counter idiom are kept, the
// sliding-window/adaptive-threshold machinery is replaced with a plain
// consecutive-failure counter per the simpler model this spec requires.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrOpen is returned by Protect when the breaker is Open or has exhausted
// its half-open probe budget.
var ErrOpen = errors.New("breaker: circuit open")

// State is the lifecycle of a CircuitBreaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes a CircuitBreaker.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	ResetDuration    time.Duration // cool-down before Open -> HalfOpen
	HalfOpenRequests int           // probes allowed while HalfOpen
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetDuration <= 0 {
		c.ResetDuration = 30 * time.Second
	}
	if c.HalfOpenRequests <= 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

// Stats is a point-in-time snapshot of breaker activity.
type Stats struct {
	State               State
	ConsecutiveFailures int
	TotalOpened         int64
	TotalClosed         int64
	HalfOpenProbesUsed  int
	TotalSuccesses      int64
	TotalFailures       int64
	TotalRejected       int64
}

// CircuitBreaker is a consecutive-failure-threshold circuit breaker keyed
// by module name inside a Registry.
type CircuitBreaker struct {
	cfg Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbesUsed  int
	totalOpened         int64
	totalClosed         int64
	totalSuccesses      int64
	totalFailures       int64
	totalRejected       int64

	openCounter  metric.Int64Counter
	closeCounter metric.Int64Counter
}

// New constructs a CircuitBreaker in the Closed state. meter may be nil,
// in which case no metrics are recorded.
func New(cfg Config, meter metric.Meter) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg.withDefaults(), state: Closed}
	if meter != nil {
		cb.openCounter, _ = meter.Int64Counter("constellation_breaker_open_total")
		cb.closeCounter, _ = meter.Int64Counter("constellation_breaker_close_total")
	}
	return cb
}

// Protect runs fn if the breaker currently allows a request, recording the
// outcome against the breaker's state machine. Returns ErrOpen without
// calling fn when the circuit is open or half-open probes are exhausted.
func (cb *CircuitBreaker) Protect(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		cb.mu.Lock()
		cb.totalRejected++
		cb.mu.Unlock()
		return ErrOpen
	}
	err := fn(ctx)
	cb.recordResult(ctx, err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Open:
		if time.Since(cb.openedAt) >= cb.cfg.ResetDuration {
			cb.state = HalfOpen
			cb.halfOpenProbesUsed = 0
		} else {
			return false
		}
	case HalfOpen:
		if cb.halfOpenProbesUsed >= cb.cfg.HalfOpenRequests {
			return false
		}
	}
	if cb.state == HalfOpen {
		cb.halfOpenProbesUsed++
	}
	return true
}

func (cb *CircuitBreaker) recordResult(ctx context.Context, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.totalSuccesses++
	} else {
		cb.totalFailures++
	}

	switch cb.state {
	case HalfOpen:
		if success {
			if cb.halfOpenProbesUsed >= cb.cfg.HalfOpenRequests {
				cb.transitionToClosed(ctx)
			}
		} else {
			cb.transitionToOpen(ctx)
		}
	case Closed:
		if success {
			cb.consecutiveFailures = 0
		} else {
			cb.consecutiveFailures++
			if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
				cb.transitionToOpen(ctx)
			}
		}
	}
}

func (cb *CircuitBreaker) transitionToOpen(ctx context.Context) {
	cb.state = Open
	cb.openedAt = time.Now()
	cb.totalOpened++
	if cb.openCounter != nil {
		cb.openCounter.Add(ctx, 1)
	}
}

func (cb *CircuitBreaker) transitionToClosed(ctx context.Context) {
	cb.state = Closed
	cb.consecutiveFailures = 0
	cb.halfOpenProbesUsed = 0
	cb.openedAt = time.Time{}
	cb.totalClosed++
	if cb.closeCounter != nil {
		cb.closeCounter.Add(ctx, 1)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of breaker counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
		TotalOpened:         cb.totalOpened,
		TotalClosed:         cb.totalClosed,
		HalfOpenProbesUsed:  cb.halfOpenProbesUsed,
		TotalSuccesses:      cb.totalSuccesses,
		TotalFailures:       cb.totalFailures,
		TotalRejected:       cb.totalRejected,
	}
}

// Reset forces the breaker back to Closed, clearing the consecutive-failure
// and half-open probe counts; the cumulative Total* counters are kept.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.consecutiveFailures = 0
	cb.halfOpenProbesUsed = 0
	cb.openedAt = time.Time{}
}

// Registry is a name-keyed collection of circuit breakers, shared process-
// wide within one Constellation instance so repeated executions of the same
// module observe cumulative failure state (§4.3).
type Registry struct {
	cfg   Config
	meter metric.Meter

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry constructs a Registry that lazily creates breakers using cfg
// and meter for any module name not yet seen.
func NewRegistry(cfg Config, meter metric.Meter) *Registry {
	return &Registry{cfg: cfg, meter: meter, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for name, creating one on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := New(r.cfg, r.meter)
	r.breakers[name] = cb
	return cb
}

// All returns a snapshot of every breaker's stats keyed by module name.
func (r *Registry) All() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.Stats()
	}
	return out
}

func (s State) GoString() string {
	return fmt.Sprintf("breaker.State(%s)", s.String())
}
