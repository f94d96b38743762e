package constellation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/runtime"
	"github.com/VledicFranco/constellation-engine-sub007/internal/scheduler"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

func uppercaseSpec(t *testing.T) *DagSpec {
	t.Helper()
	modules := map[dagspec.ModuleID]dagspec.ModuleNodeSpec{
		"upper": {
			Name:     "upper",
			Consumes: map[string]value.Type{"in": value.String()},
			Produces: map[string]value.Type{"out": value.String()},
		},
	}
	data := map[dagspec.DataID]dagspec.DataNodeSpec{
		"d_in":  {Name: "in", Type: value.String(), PortBindings: map[dagspec.ModuleID]string{"upper": "in"}},
		"d_out": {Name: "out", Type: value.String(), PortBindings: map[dagspec.ModuleID]string{"upper": "out"}},
	}
	spec, err := dagspec.Build(dagspec.Metadata{Name: "uppercase"}, modules, data,
		[]dagspec.InEdge{{Data: "d_in", Module: "upper"}},
		[]dagspec.OutEdge{{Module: "upper", Data: "d_out"}},
		[]string{"out"}, map[string]dagspec.DataID{"out": "d_out"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec
}

func uppercaseModule() Module {
	return ModuleFunc(func(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error) {
		return map[string]value.Value{"out": value.Str(strings.ToUpper(inputs["in"].StringVal))}, nil
	})
}

func TestExecuteRunsDAGAndReturnsOutputs(t *testing.T) {
	c := New(Config{})
	spec := uppercaseSpec(t)
	rs, err := c.Execute(context.Background(), spec, map[string]value.Value{"in": value.Str("go")}, map[dagspec.ModuleID]Module{"upper": uppercaseModule()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !value.Equal(rs.Data["d_out"], value.Str("GO")) {
		t.Fatalf("expected GO, got %+v", rs.Data["d_out"])
	}
	status := rs.ModuleStatus["upper"]
	if status.Kind != runtime.Fired {
		t.Fatalf("expected upper module Fired, got %v", status.Kind)
	}
	if rs.Latency == nil {
		t.Fatalf("expected latency to be set on a completed run")
	}
}

func TestAccessorsReturnSharedInfrastructure(t *testing.T) {
	c := New(Config{})
	if c.Scheduler() == nil || c.Breakers() == nil || c.Limiters() == nil || c.Lifecycle() == nil || c.Tracker() == nil {
		t.Fatalf("expected all accessors to return non-nil infrastructure")
	}
}

func TestRunWithTimeoutCancelsLongRunningDAG(t *testing.T) {
	c := New(Config{})
	spec := uppercaseSpec(t)
	blocking := ModuleFunc(func(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := c.RunWithTimeout(context.Background(), 20*time.Millisecond, spec,
		map[string]value.Value{"in": value.Str("x")}, map[dagspec.ModuleID]Module{"upper": blocking})
	if err == nil {
		t.Fatalf("expected RunWithTimeout to return an error for a cancelled run")
	}
}

func TestShutdownDrainsAndStopsScheduler(t *testing.T) {
	c := New(Config{})
	c.Shutdown(context.Background(), 100*time.Millisecond)
	if c.Lifecycle().InflightCount() != 0 {
		t.Fatalf("expected no inflight executions after shutdown")
	}
	if err := c.Scheduler().Submit(scheduler.DefaultPriority, func(ctx context.Context) {}); err != scheduler.ErrShutdown {
		t.Fatalf("expected scheduler to reject submits after shutdown, got %v", err)
	}
}
