// Package lifecycle implements the process-level admission controller
// (§4.10): a Running -> Draining -> Stopped state machine that tracks
// in-flight executions and, on Shutdown, waits for them to finish up to a
// drain timeout before force-cancelling the remainder. Grounded on
// services/orchestrator/cancellation.go's CancellationManager
// (activeExecutions map, Register/Cancel/CancelAll/Cleanup), generalized
// from a flat execution-cancellation registry into the full three-state
// machine this spec requires.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrShuttingDown is returned by RegisterExecution once the lifecycle has
// left the Running state.
var ErrShuttingDown = errors.New("lifecycle: constellation is shutting down")

// State is the lifecycle phase of a ConstellationLifecycle.
type State int

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CancelFunc cancels one in-flight execution; registered alongside it so
// Shutdown can force-cancel anything still running past the drain timeout.
type CancelFunc func()

// ConstellationLifecycle is the process-wide admission controller for one
// Constellation instance.
type ConstellationLifecycle struct {
	mu       sync.Mutex
	state    State
	inflight map[string]CancelFunc

	drainComplete chan struct{}

	shutdownCounter    metric.Int64Counter
	forceCancelCounter metric.Int64Counter
}

// New constructs a ConstellationLifecycle in the Running state. meter may
// be nil.
func New(meter metric.Meter) *ConstellationLifecycle {
	l := &ConstellationLifecycle{
		state:    Running,
		inflight: make(map[string]CancelFunc),
	}
	if meter != nil {
		l.shutdownCounter, _ = meter.Int64Counter("constellation_lifecycle_shutdown_total")
		l.forceCancelCounter, _ = meter.Int64Counter("constellation_lifecycle_force_cancel_total")
	}
	return l
}

// RegisterExecution admits executionID as in-flight with cancel as its
// cancellation hook. Returns ErrShuttingDown if the lifecycle is not
// Running, resolving the register-vs-shutdown race in favor of rejecting
// new work the instant shutdown begins.
func (l *ConstellationLifecycle) RegisterExecution(executionID string, cancel CancelFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Running {
		return ErrShuttingDown
	}
	l.inflight[executionID] = cancel
	return nil
}

// DeregisterExecution marks executionID as finished. If this was the last
// in-flight execution during a drain, it signals the drain as complete.
func (l *ConstellationLifecycle) DeregisterExecution(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, executionID)
	if l.state == Draining && len(l.inflight) == 0 && l.drainComplete != nil {
		select {
		case <-l.drainComplete:
		default:
			close(l.drainComplete)
		}
	}
}

// InflightCount returns the number of currently registered executions.
func (l *ConstellationLifecycle) InflightCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// State returns the current lifecycle phase.
func (l *ConstellationLifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Shutdown transitions Running -> Draining, waits up to drainTimeout for
// in-flight executions to deregister themselves, then force-cancels
// whatever remains and transitions to Stopped. Calling Shutdown more than
// once is a no-op: any call made after the first has begun returns
// immediately, without waiting for the shutdown sequence to finish.
func (l *ConstellationLifecycle) Shutdown(ctx context.Context, drainTimeout time.Duration) {
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return
	}
	l.state = Draining
	done := make(chan struct{})
	if len(l.inflight) == 0 {
		close(done)
	}
	l.drainComplete = done
	if l.shutdownCounter != nil {
		l.shutdownCounter.Add(ctx, 1)
	}
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(drainTimeout):
	case <-ctx.Done():
	}

	l.mu.Lock()
	remaining := make([]CancelFunc, 0, len(l.inflight))
	for _, cancel := range l.inflight {
		remaining = append(remaining, cancel)
	}
	l.inflight = make(map[string]CancelFunc)
	l.state = Stopped
	l.mu.Unlock()

	for _, cancel := range remaining {
		cancel()
		if l.forceCancelCounter != nil {
			l.forceCancelCounter.Add(ctx, 1)
		}
	}
}
