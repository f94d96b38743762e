// Package errstrategy implements the per-module error handling strategy
// (§4.7): Propagate/Skip/Log/Wrap, selected per module and applied around
// its execute call. Grounded on the teacher's executeTask error-path
// branching in services/orchestrator/dag_engine.go, generalized from a
// single hardcoded failure path into four selectable strategies.
package errstrategy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// ErrInvalidStrategyUse is returned by Execute when called with the Wrap
// strategy, which must go through ExecuteTyped instead since it fabricates
// a tagged union the caller's produced type doesn't natively have.
var ErrInvalidStrategyUse = errors.New("errstrategy: Wrap strategy must be handled via ExecuteTyped, not Execute")

// Strategy is one of the four error handling modes a module may declare.
type Strategy int

const (
	Propagate Strategy = iota
	Skip
	Log
	Wrap
)

func (s Strategy) String() string {
	switch s {
	case Propagate:
		return "propagate"
	case Skip:
		return "skip"
	case Log:
		return "log"
	case Wrap:
		return "wrap"
	default:
		return "unknown"
	}
}

// Parse parses a case-insensitive strategy name.
func Parse(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "propagate":
		return Propagate, nil
	case "skip":
		return Skip, nil
	case "log":
		return Log, nil
	case "wrap":
		return Wrap, nil
	default:
		return 0, fmt.Errorf("errstrategy: unknown strategy %q", s)
	}
}

// Result is the tagged Ok/Err outcome produced by Wrap: the module's
// output type becomes Union{Ok: outputType, Err: Product{message: String}},
// and the caller sees a value.Value rather than a Go error. The Err variant
// carries only the error's message; it holds no module name, error type or
// timestamp.
type Result struct {
	Ok  bool
	Val value.Value
	Err error
}

// ToValue renders a Result as a tagged union value per outputType,
// suitable as the produced value.Value for a Wrap-strategy module.
func ToValue(r Result, okType value.Type) value.Value {
	errType := value.Product(map[string]value.Type{"message": value.String()})
	unionType := value.Union(map[string]value.Type{"Ok": okType, "Err": errType}, []string{"Ok", "Err"})
	if r.Ok {
		return value.NewUnion(unionType.Variants, "Ok", r.Val)
	}
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
	}
	errVal := value.NewProduct(map[string]value.Type{"message": value.String()}, map[string]value.Value{
		"message": value.Str(msg),
	})
	return value.NewUnion(unionType.Variants, "Err", errVal)
}

// Execute runs produce and applies strategy to its outcome.
//
// Propagate returns produce's error unchanged.
// Skip swallows the error and returns zeroValue, nil, signaling the caller
// to treat the node as having produced its type's zero value.
// Log records the error via logger and then behaves like Skip.
// Wrap is handled by ExecuteTyped instead; calling Execute with Wrap is a
// programmer error since Wrap must fabricate a tagged union the caller's
// produced type doesn't natively have.
func Execute(strategy Strategy, logger *slog.Logger, moduleName string, zeroValue value.Value, produce func() (value.Value, error)) (value.Value, error) {
	v, err := produce()
	if err == nil {
		return v, nil
	}
	switch strategy {
	case Propagate:
		return value.Value{}, err
	case Skip:
		return zeroValue, nil
	case Log:
		if logger != nil {
			logger.Warn("module execution failed, skipping", "module", moduleName, "error", err)
		}
		return zeroValue, nil
	case Wrap:
		return value.Value{}, ErrInvalidStrategyUse
	default:
		panic(fmt.Sprintf("errstrategy: unhandled strategy %v", strategy))
	}
}

// ExecuteTyped runs produce and, for the Wrap strategy, folds the outcome
// into a tagged Result union of okType rather than returning a Go error.
func ExecuteTyped(strategy Strategy, logger *slog.Logger, moduleName string, okType value.Type, produce func() (value.Value, error)) (value.Value, error) {
	if strategy != Wrap {
		zero := value.ZeroValue(okType)
		return Execute(strategy, logger, moduleName, zero, produce)
	}
	v, err := produce()
	result := Result{Ok: err == nil, Val: v, Err: err}
	return ToValue(result, okType), nil
}
