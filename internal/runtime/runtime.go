// Package runtime implements the demand-driven DAG evaluator (§4.9): each
// data node is backed by a LazyCell, and forcing a declared output's cell
// recursively forces only the module and data cells it actually depends
// on — no explicit topological sort runs up front, order emerges from
// demand. This is a deliberate departure from the teacher's
// dag_engine.go, which computes an explicit in-degree/Kahn's-algorithm
// schedule in buildDAG/executeDAG; here only the concurrency, resilience
// stack wrapping order, and tracing idiom of executeTask/executeDAG carry
// over, not the scheduling algorithm itself. Module execution is
// dispatched through internal/scheduler for admission control and
// priority ordering the way executeDAG dispatches onto its worker pool.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/VledicFranco/constellation-engine-sub007/internal/breaker"
	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/errstrategy"
	"github.com/VledicFranco/constellation-engine-sub007/internal/lazycell"
	"github.com/VledicFranco/constellation-engine-sub007/internal/lifecycle"
	"github.com/VledicFranco/constellation-engine-sub007/internal/limiters"
	"github.com/VledicFranco/constellation-engine-sub007/internal/retry"
	"github.com/VledicFranco/constellation-engine-sub007/internal/scheduler"
	"github.com/VledicFranco/constellation-engine-sub007/internal/tracker"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// ErrMissingInput is returned when a DAG input data node has neither a
// producing module nor a seeded value.
var ErrMissingInput = errors.New("runtime: no value available for data node")

// ErrModuleTimeout is the error recorded (and translated to a Timed
// status) when a module's ModuleTimeout elapses before it completes.
var ErrModuleTimeout = errors.New("runtime: module execution timed out")

// ModuleOptions configures how one module's execution is wrapped by the
// resilience stack (§4.11).
type ModuleOptions struct {
	ErrorStrategy    errstrategy.Strategy
	Retry            retry.Config
	RateControl      limiters.RateControlOptions
	BreakerEnabled   bool
	SchedulePriority int

	// CacheTTL, if > 0, memoizes a successful result by module name plus
	// input fingerprint for this long (§4.11 item 4).
	CacheTTL time.Duration
	// ModuleTimeout, if > 0, bounds a single attempt; exceeding it
	// produces ErrModuleTimeout and a Timed module status (§4.11 item 6).
	ModuleTimeout time.Duration
	// Fallback, if non-nil, is returned (marked Fired with a side note)
	// when every stage above it has failed (§4.11 item 7).
	Fallback map[string]value.Value
}

// Config wires the shared resilience infrastructure a Runtime uses.
type Config struct {
	Scheduler   *scheduler.Scheduler
	Breakers    *breaker.Registry
	Limiters    *limiters.LimiterRegistry
	Lifecycle   *lifecycle.ConstellationLifecycle
	Tracker     *tracker.ExecutionTracker
	Cache       *ModuleCache
	Logger      *slog.Logger
	ModuleOpts  map[dagspec.ModuleID]ModuleOptions
	DefaultOpts ModuleOptions
}

// Runtime evaluates one DagSpec against a concrete set of Module
// implementations.
type Runtime struct {
	spec     *dagspec.DagSpec
	modules  map[dagspec.ModuleID]Module
	cfg      Config
	rateExec *limiters.RateControlExecutor
}

// New constructs a Runtime. modules must provide an implementation for
// every dagspec.ModuleID declared in spec.
func New(spec *dagspec.DagSpec, modules map[dagspec.ModuleID]Module, cfg Config) (*Runtime, error) {
	for id := range spec.Modules {
		if _, ok := modules[id]; !ok {
			return nil, fmt.Errorf("runtime: no Module implementation registered for %q", id)
		}
	}
	if cfg.Limiters == nil {
		cfg.Limiters = limiters.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ModuleOpts == nil {
		cfg.ModuleOpts = make(map[dagspec.ModuleID]ModuleOptions)
	}
	return &Runtime{
		spec:     spec,
		modules:  modules,
		cfg:      cfg,
		rateExec: limiters.NewRateControlExecutor(cfg.Limiters),
	}, nil
}

func (r *Runtime) optionsFor(id dagspec.ModuleID) ModuleOptions {
	if o, ok := r.cfg.ModuleOpts[id]; ok {
		return o
	}
	return r.cfg.DefaultOpts
}

// evaluator holds the per-run memoization state threaded through a single
// Execute call.
type evaluator struct {
	rt          *Runtime
	ctx         context.Context
	executionID string
	seeded      map[dagspec.DataID]value.Value
	moduleCells map[dagspec.ModuleID]*lazycell.LazyCell[map[string]value.Value]
	runState    *RunState
}

// Execute runs the DAG to completion, resolving every declared output.
// inputs is keyed by data node name (not DataID); names not matching any
// declared data node are ignored. The returned RunState is always
// non-nil and reflects whatever was computed even when err is non-nil;
// err is non-nil only when a declared output could not be resolved after
// its module's own error strategy ran (§4.9 Completion).
func (r *Runtime) Execute(ctx context.Context, inputs map[string]value.Value) (*RunState, error) {
	executionID := uuid.NewString()
	return r.executeWithID(ctx, executionID, inputs)
}

func (r *Runtime) executeWithID(ctx context.Context, executionID string, inputs map[string]value.Value) (*RunState, error) {
	start := time.Now()
	seeded := make(map[dagspec.DataID]value.Value, len(inputs))
	for name, v := range inputs {
		if id, ok := r.spec.DataIDByName(name); ok {
			seeded[id] = v
		}
	}

	if r.cfg.Tracker != nil {
		r.cfg.Tracker.StartExecution(executionID)
		defer r.cfg.Tracker.FinishExecution(executionID)
	}

	rs := newRunState(executionID, r.spec)
	ev := &evaluator{
		rt:          r,
		ctx:         ctx,
		executionID: executionID,
		seeded:      seeded,
		moduleCells: make(map[dagspec.ModuleID]*lazycell.LazyCell[map[string]value.Value]),
		runState:    rs,
	}

	var firstErr error
	for name, did := range r.spec.OutputBindings {
		v, err := ev.resolveData(did)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("runtime: resolving output %q: %w", name, err)
			}
			continue
		}
		rs.recordData(did, v)
	}
	rs.finish(start)
	return rs, firstErr
}

// resolveData returns the value for a DataID, forcing its producing
// module (and, transitively, that module's own inputs) on first demand.
func (ev *evaluator) resolveData(id dagspec.DataID) (value.Value, error) {
	if v, ok := ev.seeded[id]; ok {
		ev.runState.recordData(id, v)
		return v, nil
	}
	producer, ok := ev.rt.spec.ProducerOf(id)
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", ErrMissingInput, id)
	}
	outputs, err := ev.resolveModule(producer)
	if err != nil {
		return value.Value{}, err
	}
	dataSpec := ev.rt.spec.Data[id]
	portName, ok := dataSpec.PortBindings[producer]
	if !ok {
		return value.Value{}, fmt.Errorf("runtime: data %q has no port binding for producer %q", id, producer)
	}
	if v, ok := outputs[portName]; ok {
		ev.runState.recordData(id, v)
		return v, nil
	}
	// Wrap-strategy modules collapse every declared output into a single
	// tagged union, stored under a synthetic key; every data node bound to
	// that module observes the same union value regardless of port name.
	if len(outputs) == 1 {
		for _, v := range outputs {
			ev.runState.recordData(id, v)
			return v, nil
		}
	}
	return value.Value{}, fmt.Errorf("runtime: module %q produced no value for port %q", producer, portName)
}

// resolveModule forces the memoized computation of module m, dispatching
// through the scheduler and wrapping with the resilience stack exactly
// once no matter how many of m's output ports downstream nodes demand.
func (ev *evaluator) resolveModule(m dagspec.ModuleID) (map[string]value.Value, error) {
	cell, ok := ev.moduleCells[m]
	if !ok {
		cell = lazycell.New(func() (map[string]value.Value, error) {
			return ev.computeModule(m)
		})
		ev.moduleCells[m] = cell
	}
	return cell.Force()
}

func (ev *evaluator) computeModule(m dagspec.ModuleID) (map[string]value.Value, error) {
	spec := ev.rt.spec.Modules[m]
	opts := ev.rt.optionsFor(m)

	inputs := make(map[string]value.Value, len(spec.Consumes))
	for _, e := range ev.rt.spec.InputsOf(m) {
		portName, ok := ev.rt.spec.Data[e.Data].PortBindings[m]
		if !ok {
			return nil, fmt.Errorf("runtime: data %q has no port binding for consumer %q", e.Data, m)
		}
		v, err := ev.resolveData(e.Data)
		if err != nil {
			return nil, err
		}
		inputs[portName] = v
	}

	if ev.rt.cfg.Tracker != nil {
		ev.rt.cfg.Tracker.RecordNodeStart(ev.executionID, m)
	}

	start := time.Now()
	outputs, kind, note, err := ev.runWithErrorStrategy(m, spec, opts, inputs)
	duration := time.Since(start)
	ev.runState.recordModule(m, kind, duration, err, note)

	if ev.rt.cfg.Tracker != nil {
		if err != nil {
			ev.rt.cfg.Tracker.RecordNodeFailed(ev.executionID, m, err)
		} else {
			ev.rt.cfg.Tracker.RecordNodeComplete(ev.executionID, m, productOf(outputs))
		}
	}
	return outputs, err
}

func productOf(outputs map[string]value.Value) value.Value {
	fields := make(map[string]value.Type, len(outputs))
	for k, v := range outputs {
		fields[k] = value.TypeOf(v)
	}
	return value.NewProduct(fields, outputs)
}

// runWithErrorStrategy is the outermost stage of §4.11's resilience
// stack: it runs the fallback/timeout/retry/cache/breaker/rate-control
// stack beneath it via runResilienceStack, then applies the module's
// ErrorStrategy to the outcome. Propagate/Skip/Log/Wrap all see the same
// produce() closure, which bundles every declared output into one
// Product the way non-Wrap strategies always have — Wrap is no longer
// restricted to single-output modules, it simply wraps that same Product
// in an Ok/Err union.
func (ev *evaluator) runWithErrorStrategy(m dagspec.ModuleID, spec dagspec.ModuleNodeSpec, opts ModuleOptions, inputs map[string]value.Value) (map[string]value.Value, ModuleStatusKind, string, error) {
	okType := value.Product(spec.Produces)

	var kind ModuleStatusKind
	var note string

	produce := func() (value.Value, error) {
		outputs, k, n, err := ev.runResilienceStack(m, opts, inputs)
		kind, note = k, n
		if err != nil {
			return value.Value{}, err
		}
		return productOf(outputs), nil
	}

	v, err := errstrategy.ExecuteTyped(opts.ErrorStrategy, ev.rt.cfg.Logger, string(m), okType, produce)
	if err != nil {
		return nil, kind, note, err
	}

	if opts.ErrorStrategy == errstrategy.Wrap {
		return map[string]value.Value{"result": v}, kind, note, nil
	}
	if v.Kind != value.KindProduct {
		return nil, kind, note, fmt.Errorf("runtime: expected product output from module %q, got %v", m, v.Kind)
	}
	// Skip/Log may have swallowed the underlying error into a zero-value
	// product; kind/note still reflect what runResilienceStack observed.
	return v.Product, kind, note, nil
}

// runResilienceStack runs the module beneath the error strategy, nesting
// (innermost to outermost) per §4.11: rate limiter + concurrency limiter,
// circuit breaker, cache, module timeout (applied per retry attempt),
// retry loop, scheduler admission, fallback.
func (ev *evaluator) runResilienceStack(m dagspec.ModuleID, opts ModuleOptions, inputs map[string]value.Value) (map[string]value.Value, ModuleStatusKind, string, error) {
	module := ev.rt.modules[m]

	fn := func(ctx context.Context) (map[string]value.Value, error) {
		return module.Execute(ctx, inputs)
	}

	// 1-2: rate limiter + concurrency limiter
	rateControlled := func(ctx context.Context) (map[string]value.Value, error) {
		var result map[string]value.Value
		err := ev.rt.rateExec.ExecuteWithRateControl(ctx, opts.RateControl, func(ctx context.Context) error {
			var innerErr error
			result, innerErr = fn(ctx)
			return innerErr
		})
		return result, err
	}

	// 3: circuit breaker
	breakerWrapped := rateControlled
	if opts.BreakerEnabled && ev.rt.cfg.Breakers != nil {
		cb := ev.rt.cfg.Breakers.Get(string(m))
		inner := breakerWrapped
		breakerWrapped = func(ctx context.Context) (map[string]value.Value, error) {
			var result map[string]value.Value
			err := cb.Protect(ctx, func(ctx context.Context) error {
				var innerErr error
				result, innerErr = inner(ctx)
				return innerErr
			})
			return result, err
		}
	}

	// 4: cache
	cached := breakerWrapped
	if opts.CacheTTL > 0 && ev.rt.cfg.Cache != nil {
		key := value.FingerprintAll(string(m), inputs)
		inner := breakerWrapped
		cached = func(ctx context.Context) (map[string]value.Value, error) {
			if cachedVal, ok := ev.rt.cfg.Cache.Get(key); ok {
				return cachedVal.Product, nil
			}
			result, err := inner(ctx)
			if err == nil {
				ev.rt.cfg.Cache.Put(key, productOf(result), opts.CacheTTL)
			}
			return result, err
		}
	}

	// 6: module timeout, applied per retry attempt so it nests inside the
	// retry loop rather than around it.
	timedOut := false
	timeoutWrapped := cached
	if opts.ModuleTimeout > 0 {
		inner := cached
		timeoutWrapped = func(ctx context.Context) (map[string]value.Value, error) {
			ctxT, cancel := context.WithTimeout(ctx, opts.ModuleTimeout)
			defer cancel()
			result, err := inner(ctxT)
			if err != nil && ctxT.Err() == context.DeadlineExceeded {
				timedOut = true
				return nil, fmt.Errorf("%w: %s", ErrModuleTimeout, m)
			}
			return result, err
		}
	}

	// 5: retry loop
	retried := func(ctx context.Context) (map[string]value.Value, error) {
		return retry.Retry(ctx, opts.Retry, timeoutWrapped)
	}

	dispatched := retried
	if ev.rt.cfg.Scheduler != nil {
		dispatched = func(ctx context.Context) (map[string]value.Value, error) {
			return ev.dispatchThroughScheduler(m, opts, retried)
		}
	}

	outputs, err := dispatched(ev.ctx)

	// 7: fallback
	if err != nil && opts.Fallback != nil {
		return opts.Fallback, Fired, "fallback applied after resilience stack exhausted", nil
	}

	if err != nil {
		if timedOut || errors.Is(err, ErrModuleTimeout) {
			return nil, Timed, "", err
		}
		return nil, Failed, "", err
	}
	return outputs, Fired, "", nil
}

func (ev *evaluator) dispatchThroughScheduler(m dagspec.ModuleID, opts ModuleOptions, fn func(ctx context.Context) (map[string]value.Value, error)) (map[string]value.Value, error) {
	type outcome struct {
		result map[string]value.Value
		err    error
	}
	done := make(chan outcome, 1)
	priority := opts.SchedulePriority
	if priority == 0 {
		priority = scheduler.DefaultPriority
	}
	submitErr := ev.rt.cfg.Scheduler.Submit(priority, func(ctx context.Context) {
		result, err := fn(ev.ctx)
		done <- outcome{result, err}
	})
	if submitErr != nil {
		return nil, submitErr
	}
	select {
	case o := <-done:
		return o.result, o.err
	case <-ev.ctx.Done():
		return nil, ev.ctx.Err()
	}
}
