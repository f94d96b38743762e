package runtime

import (
	"context"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// Module is one executable unit of a DagSpec. Execute receives one
// value.Value per declared input port (keyed by port name) and must
// return one value.Value per declared output port.
type Module interface {
	Execute(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error)
}

// ModuleFunc adapts a plain function to the Module interface.
type ModuleFunc func(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error)

func (f ModuleFunc) Execute(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error) {
	return f(ctx, inputs)
}
