package tracker

import (
	"errors"
	"strings"
	"testing"

	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

func TestExecutionRoundTrip(t *testing.T) {
	tr := New(10)
	tr.StartExecution("run1")
	tr.RecordNodeStart("run1", "upper")
	tr.RecordNodeComplete("run1", "upper", value.Str("HELLO"))
	tr.FinishExecution("run1")

	trace, ok := tr.GetTrace("run1")
	if !ok {
		t.Fatalf("expected trace for run1")
	}
	if trace.FinishedAt.IsZero() {
		t.Fatalf("expected FinishedAt set")
	}
	node := trace.Nodes["upper"]
	if node == nil || node.Status != NodeCompleted {
		t.Fatalf("expected upper node completed, got %+v", node)
	}
	if !value.Equal(node.Value, value.Str("HELLO")) {
		t.Fatalf("expected recorded value HELLO, got %+v", node.Value)
	}
}

func TestRecordNodeFailedCapturesError(t *testing.T) {
	tr := New(10)
	tr.StartExecution("run1")
	tr.RecordNodeStart("run1", "m")
	tr.RecordNodeFailed("run1", "m", errors.New("boom"))

	trace, _ := tr.GetTrace("run1")
	node := trace.Nodes[dagspec.ModuleID("m")]
	if node.Status != NodeFailed || node.Err != "boom" {
		t.Fatalf("expected failed node with error boom, got %+v", node)
	}
}

func TestLRUEvictionAtCapacity(t *testing.T) {
	tr := New(2)
	tr.StartExecution("run1")
	tr.StartExecution("run2")
	tr.StartExecution("run3") // should evict run1 (least recently touched)

	if _, ok := tr.GetTrace("run1"); ok {
		t.Fatalf("expected run1 evicted")
	}
	if _, ok := tr.GetTrace("run2"); !ok {
		t.Fatalf("expected run2 retained")
	}
	if _, ok := tr.GetTrace("run3"); !ok {
		t.Fatalf("expected run3 retained")
	}
}

func TestValueTruncation(t *testing.T) {
	tr := New(10)
	tr.StartExecution("run1")
	huge := strings.Repeat("x", MaxTrackedValueBytes+100)
	tr.RecordNodeComplete("run1", "m", value.Str(huge))

	trace, _ := tr.GetTrace("run1")
	node := trace.Nodes[dagspec.ModuleID("m")]
	if !node.Truncated {
		t.Fatalf("expected Truncated=true for oversized value")
	}
	if len(node.Value.StringVal) != MaxTrackedValueBytes {
		t.Fatalf("expected truncated length %d, got %d", MaxTrackedValueBytes, len(node.Value.StringVal))
	}
}

func TestClearRemovesAllTraces(t *testing.T) {
	tr := New(10)
	tr.StartExecution("run1")
	tr.Clear()
	if len(tr.GetAllTraces()) != 0 {
		t.Fatalf("expected no traces after Clear")
	}
}
