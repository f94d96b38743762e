package runtime

import (
	"time"

	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// ModuleStatusKind discriminates the four states a module cell passes
// through during one execution (§3).
type ModuleStatusKind int

const (
	// NotYet is the initial state: the module was never forced.
	NotYet ModuleStatusKind = iota
	// Fired is terminal: the module ran and produced a value.
	Fired
	// Failed is terminal: the module ran and its error propagated.
	Failed
	// Timed is terminal: the module's ModuleTimeout elapsed before it
	// produced a value.
	Timed
)

func (k ModuleStatusKind) String() string {
	switch k {
	case NotYet:
		return "not_yet"
	case Fired:
		return "fired"
	case Failed:
		return "failed"
	case Timed:
		return "timed"
	default:
		return "unknown"
	}
}

// ModuleStatus is the tagged outcome of one module cell, per §3: exactly
// one of Duration (Fired/Timed) or Err (Failed) is meaningful, selected by
// Kind. Note carries a side note for Fired-by-fallback outcomes.
type ModuleStatus struct {
	Kind     ModuleStatusKind
	Duration time.Duration
	Err      error
	Note     string
}

// RunState is the finalized record of one Execute call (§3): every
// module's terminal status, every data cell actually computed, and the
// wall-clock latency of the run.
type RunState struct {
	ProcessID string
	DagName   string

	ModuleStatus map[dagspec.ModuleID]ModuleStatus
	Data         map[dagspec.DataID]value.Value

	// Latency is nil until the run reaches terminal completion.
	Latency *time.Duration
}

func newRunState(processID string, spec *dagspec.DagSpec) *RunState {
	statuses := make(map[dagspec.ModuleID]ModuleStatus, len(spec.Modules))
	for id := range spec.Modules {
		statuses[id] = ModuleStatus{Kind: NotYet}
	}
	return &RunState{
		ProcessID:    processID,
		DagName:      spec.Metadata.Name,
		ModuleStatus: statuses,
		Data:         make(map[dagspec.DataID]value.Value, len(spec.Data)),
	}
}

func (rs *RunState) recordModule(m dagspec.ModuleID, kind ModuleStatusKind, duration time.Duration, err error, note string) {
	rs.ModuleStatus[m] = ModuleStatus{Kind: kind, Duration: duration, Err: err, Note: note}
}

func (rs *RunState) recordData(id dagspec.DataID, v value.Value) {
	rs.Data[id] = v
}

func (rs *RunState) finish(start time.Time) {
	latency := time.Since(start)
	rs.Latency = &latency
}
