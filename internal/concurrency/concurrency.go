// Package concurrency implements the concurrency limiter (§4.5): a
// counting semaphore bounding how many operations run at once, tracking
// current/peak/total/waiting counts. Grounded on the teacher's maxWorkers
// worker-pool sizing in services/orchestrator/dag_engine.go (NewDAGEngine),
// generalized from a fixed pool of goroutines into a reusable semaphore any
// caller can acquire and release around its own work.
package concurrency

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidConfig is returned by New when MaxConcurrent is not strictly
// positive.
var ErrInvalidConfig = errors.New("concurrency: max_concurrent must be positive")

// Stats is a point-in-time snapshot of limiter activity.
type Stats struct {
	CurrentActive int
	PeakActive    int
	TotalAcquired int64
	Waiting       int
	Available     int
}

// ConcurrencyLimiter is a counting semaphore with observability.
type ConcurrencyLimiter struct {
	maxConcurrent int

	mu            sync.Mutex
	current       int
	peak          int
	total         int64
	waiting       int
	releaseSignal chan struct{}
}

// New constructs a ConcurrencyLimiter allowing at most maxConcurrent
// concurrent holders.
func New(maxConcurrent int) (*ConcurrencyLimiter, error) {
	if maxConcurrent <= 0 {
		return nil, ErrInvalidConfig
	}
	return &ConcurrencyLimiter{
		maxConcurrent: maxConcurrent,
		releaseSignal: make(chan struct{}, 1),
	}, nil
}

// TryAcquire attempts to take a permit without blocking.
func (cl *ConcurrencyLimiter) TryAcquire() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.current >= cl.maxConcurrent {
		return false
	}
	cl.current++
	cl.total++
	if cl.current > cl.peak {
		cl.peak = cl.current
	}
	return true
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (cl *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	for {
		cl.mu.Lock()
		if cl.current < cl.maxConcurrent {
			cl.current++
			cl.total++
			if cl.current > cl.peak {
				cl.peak = cl.current
			}
			cl.mu.Unlock()
			return nil
		}
		cl.waiting++
		signal := cl.releaseSignal
		cl.mu.Unlock()

		select {
		case <-ctx.Done():
			cl.mu.Lock()
			cl.waiting--
			cl.mu.Unlock()
			return ctx.Err()
		case <-signal:
			cl.mu.Lock()
			cl.waiting--
			cl.mu.Unlock()
		}
	}
}

// Release returns a permit to the pool.
func (cl *ConcurrencyLimiter) Release() {
	cl.mu.Lock()
	if cl.current > 0 {
		cl.current--
	}
	cl.mu.Unlock()
	select {
	case cl.releaseSignal <- struct{}{}:
	default:
	}
}

// WithPermit acquires a permit, runs fn, and releases the permit
// regardless of fn's outcome.
func (cl *ConcurrencyLimiter) WithPermit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cl.Acquire(ctx); err != nil {
		return err
	}
	defer cl.Release()
	return fn(ctx)
}

// Stats returns a snapshot of limiter counters.
func (cl *ConcurrencyLimiter) Stats() Stats {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return Stats{
		CurrentActive: cl.current,
		PeakActive:    cl.peak,
		TotalAcquired: cl.total,
		Waiting:       cl.waiting,
		Available:     cl.maxConcurrent - cl.current,
	}
}

// ResetStats resets PeakActive to the current active count and zeroes
// TotalAcquired without disturbing currently held permits.
func (cl *ConcurrencyLimiter) ResetStats() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.peak = cl.current
	cl.total = 0
}
