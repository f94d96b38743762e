// CancellableExecution wraps one asynchronous Runtime.Execute call with a
// Running -> Completed/Failed/Cancelled state machine and an idempotent
// Cancel, registered with a lifecycle.ConstellationLifecycle for the
// draining-shutdown sequence (§4.10). Grounded on
// services/orchestrator/cancellation.go's per-workflow cancellation
// handles (activeExecutions entries with their own context.CancelFunc).
package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// ErrCancelled is the error recorded when an execution is cancelled before
// completion.
var ErrCancelled = errors.New("runtime: execution cancelled")

// ExecutionState is the lifecycle of a CancellableExecution.
type ExecutionState int

const (
	ExecRunning ExecutionState = iota
	ExecCompleted
	ExecFailed
	ExecCancelled
)

func (s ExecutionState) String() string {
	switch s {
	case ExecRunning:
		return "running"
	case ExecCompleted:
		return "completed"
	case ExecFailed:
		return "failed"
	case ExecCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CancellableExecution is a handle to one in-flight or finished Execute
// call.
type CancellableExecution struct {
	ID string

	mu     sync.Mutex
	state  ExecutionState
	result *RunState
	err    error

	cancel context.CancelFunc
	done   chan struct{}
}

// RunCancellable starts Execute asynchronously and returns a handle
// immediately. If rt.cfg.Lifecycle is set, the execution is registered and
// deregistered around its lifetime so Shutdown can force-cancel it.
func (r *Runtime) RunCancellable(ctx context.Context, inputs map[string]value.Value) (*CancellableExecution, error) {
	execCtx, cancel := context.WithCancel(ctx)
	ce := &CancellableExecution{
		ID:     uuid.NewString(),
		state:  ExecRunning,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if r.cfg.Lifecycle != nil {
		if err := r.cfg.Lifecycle.RegisterExecution(ce.ID, cancel); err != nil {
			cancel()
			return nil, err
		}
	}

	go func() {
		defer close(ce.done)
		if r.cfg.Lifecycle != nil {
			defer r.cfg.Lifecycle.DeregisterExecution(ce.ID)
		}
		result, err := r.executeWithID(execCtx, ce.ID, inputs)

		ce.mu.Lock()
		defer ce.mu.Unlock()
		if ce.state == ExecCancelled {
			ce.result = result
			return
		}
		if execCtx.Err() != nil {
			ce.state = ExecCancelled
			ce.err = ErrCancelled
			ce.result = result
			return
		}
		if err != nil {
			ce.state = ExecFailed
			ce.err = err
			ce.result = result
			return
		}
		ce.state = ExecCompleted
		ce.result = result
	}()

	return ce, nil
}

// Cancel requests cancellation of the execution. Idempotent: calling
// Cancel after the execution has already finished or been cancelled has
// no further effect.
func (ce *CancellableExecution) Cancel() {
	ce.mu.Lock()
	if ce.state != ExecRunning {
		ce.mu.Unlock()
		return
	}
	ce.state = ExecCancelled
	ce.err = ErrCancelled
	ce.mu.Unlock()
	ce.cancel()
}

// State returns the current execution state.
func (ce *CancellableExecution) State() ExecutionState {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.state
}

// Wait blocks until the execution finishes (successfully, with an error,
// or by cancellation) and returns its outcome.
func (ce *CancellableExecution) Wait() (*RunState, error) {
	<-ce.done
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.result, ce.err
}
