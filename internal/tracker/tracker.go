// Package tracker implements the execution tracker (§4.12): an in-memory
// LRU store of recent execution traces, one per run, each recording
// per-node status/value/error/duration with value-size truncation so large
// payloads do not bloat the trace store. Grounded on
// services/orchestrator/persistence.go's WorkflowStore in-memory
// executionCache (size-bounded map + evictOldestExecution), generalized
// from a single WorkflowExecution-per-id cache into a trace store keyed by
// execution id with per-node detail.
package tracker

import (
	"sync"
	"time"

	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// NodeStatus is the lifecycle of one node within a tracked execution.
type NodeStatus int

const (
	NodePending NodeStatus = iota
	NodeRunning
	NodeCompleted
	NodeFailed
)

func (s NodeStatus) String() string {
	switch s {
	case NodePending:
		return "pending"
	case NodeRunning:
		return "running"
	case NodeCompleted:
		return "completed"
	case NodeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MaxTrackedValueBytes bounds a value recorded in a trace: strings longer
// than this many bytes, and lists longer than this many elements, are cut
// to that prefix and flagged. Other kinds are recorded unchanged.
const MaxTrackedValueBytes = 4096

// NodeTrace records one module's execution within a run.
type NodeTrace struct {
	Module      dagspec.ModuleID
	Status      NodeStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Value       value.Value
	Truncated   bool
	Err         string
}

// Duration returns CompletedAt.Sub(StartedAt), or zero if not yet complete.
func (n NodeTrace) Duration() time.Duration {
	if n.CompletedAt.IsZero() {
		return 0
	}
	return n.CompletedAt.Sub(n.StartedAt)
}

// ExecutionTrace is the full record of one run of a DagSpec.
type ExecutionTrace struct {
	ExecutionID string
	StartedAt   time.Time
	FinishedAt  time.Time
	Nodes       map[dagspec.ModuleID]*NodeTrace
	lastTouched time.Time
}

// ExecutionTracker is a bounded LRU store of ExecutionTrace records.
type ExecutionTracker struct {
	mu      sync.Mutex
	maxSize int
	traces  map[string]*ExecutionTrace
}

// New constructs an ExecutionTracker holding at most maxSize traces,
// evicting the least-recently-touched trace on overflow.
func New(maxSize int) *ExecutionTracker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ExecutionTracker{maxSize: maxSize, traces: make(map[string]*ExecutionTrace)}
}

// StartExecution begins tracking a new run under executionID, evicting the
// oldest trace first if the store is at capacity.
func (t *ExecutionTracker) StartExecution(executionID string) *ExecutionTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.traces) >= t.maxSize {
		t.evictOldestLocked()
	}
	now := time.Now()
	trace := &ExecutionTrace{
		ExecutionID: executionID,
		StartedAt:   now,
		Nodes:       make(map[dagspec.ModuleID]*NodeTrace),
		lastTouched: now,
	}
	t.traces[executionID] = trace
	return trace
}

func (t *ExecutionTracker) evictOldestLocked() {
	var oldestID string
	var oldestTime time.Time
	for id, tr := range t.traces {
		if oldestID == "" || tr.lastTouched.Before(oldestTime) {
			oldestID = id
			oldestTime = tr.lastTouched
		}
	}
	if oldestID != "" {
		delete(t.traces, oldestID)
	}
}

// RecordNodeStart marks module as Running within executionID's trace.
func (t *ExecutionTracker) RecordNodeStart(executionID string, module dagspec.ModuleID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.traces[executionID]
	if !ok {
		return
	}
	tr.lastTouched = time.Now()
	tr.Nodes[module] = &NodeTrace{Module: module, Status: NodeRunning, StartedAt: time.Now()}
}

// RecordNodeComplete marks module as Completed, recording v possibly
// truncated.
func (t *ExecutionTracker) RecordNodeComplete(executionID string, module dagspec.ModuleID, v value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.traces[executionID]
	if !ok {
		return
	}
	tr.lastTouched = time.Now()
	n, ok := tr.Nodes[module]
	if !ok {
		n = &NodeTrace{Module: module, StartedAt: time.Now()}
		tr.Nodes[module] = n
	}
	n.Status = NodeCompleted
	n.CompletedAt = time.Now()
	n.Value, n.Truncated = truncate(v)
}

// RecordNodeFailed marks module as Failed with err's message.
func (t *ExecutionTracker) RecordNodeFailed(executionID string, module dagspec.ModuleID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.traces[executionID]
	if !ok {
		return
	}
	tr.lastTouched = time.Now()
	n, ok := tr.Nodes[module]
	if !ok {
		n = &NodeTrace{Module: module, StartedAt: time.Now()}
		tr.Nodes[module] = n
	}
	n.Status = NodeFailed
	n.CompletedAt = time.Now()
	if err != nil {
		n.Err = err.Error()
	}
}

// FinishExecution marks executionID's trace as finished.
func (t *ExecutionTracker) FinishExecution(executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.traces[executionID]; ok {
		tr.FinishedAt = time.Now()
		tr.lastTouched = tr.FinishedAt
	}
}

// GetTrace returns the trace for executionID, if still retained.
func (t *ExecutionTracker) GetTrace(executionID string) (*ExecutionTrace, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.traces[executionID]
	if ok {
		tr.lastTouched = time.Now()
	}
	return tr, ok
}

// GetAllTraces returns every retained trace.
func (t *ExecutionTracker) GetAllTraces() []*ExecutionTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*ExecutionTrace, 0, len(t.traces))
	for _, tr := range t.traces {
		out = append(out, tr)
	}
	return out
}

// Clear discards every retained trace.
func (t *ExecutionTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traces = make(map[string]*ExecutionTrace)
}

// truncate returns the first MaxTrackedValueBytes bytes of a longer string,
// or the first MaxTrackedValueBytes elements of a longer list, and true. The
// value is cut, not replaced by a placeholder. Every other kind (maps,
// products, unions, optionals, scalars) passes through unchanged with false,
// whatever its size.
func truncate(v value.Value) (value.Value, bool) {
	switch v.Kind {
	case value.KindString:
		if len(v.StringVal) > MaxTrackedValueBytes {
			return value.Str(v.StringVal[:MaxTrackedValueBytes]), true
		}
	case value.KindList:
		if len(v.List) > MaxTrackedValueBytes {
			return value.Value{Kind: value.KindList, List: v.List[:MaxTrackedValueBytes]}, true
		}
	}
	return v, false
}
