// Package constellation is the public facade over the dataflow runtime
// core (§6): Constellation wires together a DagSpec, its Module
// implementations, and the shared resilience infrastructure (scheduler,
// circuit breakers, limiters, lifecycle, execution tracker) behind three
// entry points — a blocking Execute, a RunCancellable for long or
// interruptible runs, and a RunWithTimeout convenience wrapper.
package constellation

import (
	"context"
	"log/slog"
	"time"

	"github.com/VledicFranco/constellation-engine-sub007/internal/breaker"
	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/lifecycle"
	"github.com/VledicFranco/constellation-engine-sub007/internal/limiters"
	"github.com/VledicFranco/constellation-engine-sub007/internal/runtime"
	"github.com/VledicFranco/constellation-engine-sub007/internal/scheduler"
	"github.com/VledicFranco/constellation-engine-sub007/internal/tracker"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// Re-exported so callers outside this module construct DAGs and modules
// without reaching into internal/ directly.
type (
	DagSpec       = dagspec.DagSpec
	Module        = runtime.Module
	ModuleFunc    = runtime.ModuleFunc
	ModuleOptions = runtime.ModuleOptions
	RunState      = runtime.RunState
	ModuleStatus  = runtime.ModuleStatus
	Value         = value.Value
)

// Config tunes the infrastructure a Constellation instance owns. Zero
// value is a usable in-memory, unbounded-scheduler configuration suitable
// for tests.
type Config struct {
	SchedulerConfig scheduler.Config
	BreakerConfig   breaker.Config
	TrackerSize     int
	Logger          *slog.Logger
	ModuleOpts      map[dagspec.ModuleID]ModuleOptions
	DefaultOpts     ModuleOptions
}

// Constellation owns one process-wide set of resilience infrastructure
// shared across every DAG it runs.
type Constellation struct {
	scheduler *scheduler.Scheduler
	breakers  *breaker.Registry
	limiters  *limiters.LimiterRegistry
	lifecycle *lifecycle.ConstellationLifecycle
	tracker   *tracker.ExecutionTracker
	cache     *runtime.ModuleCache
	logger    *slog.Logger
	cfg       Config
}

// New constructs a Constellation instance with its own scheduler, breaker
// registry, limiter registry, lifecycle controller, and execution
// tracker.
func New(cfg Config) *Constellation {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Constellation{
		scheduler: scheduler.New(cfg.SchedulerConfig),
		breakers:  breaker.NewRegistry(cfg.BreakerConfig, nil),
		limiters:  limiters.NewRegistry(),
		lifecycle: lifecycle.New(nil),
		tracker:   tracker.New(cfg.TrackerSize),
		cache:     runtime.NewModuleCache(),
		logger:    cfg.Logger,
		cfg:       cfg,
	}
}

func (c *Constellation) runtimeFor(spec *dagspec.DagSpec, modules map[dagspec.ModuleID]Module) (*runtime.Runtime, error) {
	return runtime.New(spec, modules, runtime.Config{
		Scheduler:   c.scheduler,
		Breakers:    c.breakers,
		Limiters:    c.limiters,
		Lifecycle:   c.lifecycle,
		Tracker:     c.tracker,
		Cache:       c.cache,
		Logger:      c.logger,
		ModuleOpts:  c.cfg.ModuleOpts,
		DefaultOpts: c.cfg.DefaultOpts,
	})
}

// Execute runs dag to completion and returns the finalized RunState. This
// is the convenience blocking call from §6.
func (c *Constellation) Execute(ctx context.Context, dag *dagspec.DagSpec, inputs map[string]value.Value, modules map[dagspec.ModuleID]Module) (*RunState, error) {
	rt, err := c.runtimeFor(dag, modules)
	if err != nil {
		return nil, err
	}
	return rt.Execute(ctx, inputs)
}

// RunCancellable starts dag asynchronously and returns a handle that can
// be cancelled or waited on.
func (c *Constellation) RunCancellable(ctx context.Context, dag *dagspec.DagSpec, inputs map[string]value.Value, modules map[dagspec.ModuleID]Module) (*runtime.CancellableExecution, error) {
	rt, err := c.runtimeFor(dag, modules)
	if err != nil {
		return nil, err
	}
	return rt.RunCancellable(ctx, inputs)
}

// RunWithTimeout starts dag via RunCancellable and cancels it if duration
// elapses before it finishes; the returned RunState reflects whatever the
// run accumulated before being cancelled.
func (c *Constellation) RunWithTimeout(ctx context.Context, duration time.Duration, dag *dagspec.DagSpec, inputs map[string]value.Value, modules map[dagspec.ModuleID]Module) (*RunState, error) {
	ce, err := c.RunCancellable(ctx, dag, inputs, modules)
	if err != nil {
		return nil, err
	}
	timer := time.AfterFunc(duration, ce.Cancel)
	defer timer.Stop()
	return ce.Wait()
}

// Scheduler returns the shared bounded priority scheduler.
func (c *Constellation) Scheduler() *scheduler.Scheduler { return c.scheduler }

// Breakers returns the shared circuit breaker registry.
func (c *Constellation) Breakers() *breaker.Registry { return c.breakers }

// Limiters returns the shared rate and concurrency limiter registry.
func (c *Constellation) Limiters() *limiters.LimiterRegistry { return c.limiters }

// Lifecycle returns the shared admission controller.
func (c *Constellation) Lifecycle() *lifecycle.ConstellationLifecycle { return c.lifecycle }

// Tracker returns the shared execution tracker.
func (c *Constellation) Tracker() *tracker.ExecutionTracker { return c.tracker }

// Shutdown drains in-flight executions up to drainTimeout, then force-
// cancels any remainder, and stops the shared scheduler.
func (c *Constellation) Shutdown(ctx context.Context, drainTimeout time.Duration) {
	c.lifecycle.Shutdown(ctx, drainTimeout)
	c.scheduler.Shutdown()
}
