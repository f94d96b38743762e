package dagspec

import (
	"testing"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

func simpleSpec(t *testing.T) *DagSpec {
	t.Helper()
	modules := map[ModuleID]ModuleNodeSpec{
		"upper": {
			Name:     "upper",
			Consumes: map[string]value.Type{"in": value.String()},
			Produces: map[string]value.Type{"out": value.String()},
		},
	}
	data := map[DataID]DataNodeSpec{
		"d_in":  {Name: "in", Type: value.String()},
		"d_out": {Name: "out", Type: value.String()},
	}
	inEdges := []InEdge{{Data: "d_in", Module: "upper"}}
	outEdges := []OutEdge{{Module: "upper", Data: "d_out"}}
	spec, err := Build(Metadata{Name: "t"}, modules, data, inEdges, outEdges,
		[]string{"out"}, map[string]DataID{"out": "d_out"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec
}

func TestBuildProducerAndConsumerIndex(t *testing.T) {
	spec := simpleSpec(t)
	m, ok := spec.ProducerOf("d_out")
	if !ok || m != "upper" {
		t.Fatalf("expected upper to produce d_out, got %v ok=%v", m, ok)
	}
	consumers := spec.ConsumersOf("d_in")
	if len(consumers) != 1 || consumers[0] != "upper" {
		t.Fatalf("expected upper to consume d_in, got %v", consumers)
	}
}

func TestBuildRejectsUnknownDataReference(t *testing.T) {
	modules := map[ModuleID]ModuleNodeSpec{"m": {Name: "m"}}
	data := map[DataID]DataNodeSpec{}
	_, err := Build(Metadata{}, modules, data, []InEdge{{Data: "missing", Module: "m"}}, nil, nil, nil)
	if err == nil {
		t.Fatalf("expected error for unknown data id")
	}
}

func TestBuildRejectsMultipleProducers(t *testing.T) {
	modules := map[ModuleID]ModuleNodeSpec{"a": {Name: "a"}, "b": {Name: "b"}}
	data := map[DataID]DataNodeSpec{"d": {Name: "d", Type: value.Int()}}
	outEdges := []OutEdge{{Module: "a", Data: "d"}, {Module: "b", Data: "d"}}
	_, err := Build(Metadata{}, modules, data, nil, outEdges, nil, nil)
	if err == nil {
		t.Fatalf("expected error for duplicate producer")
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	modules := map[ModuleID]ModuleNodeSpec{"a": {Name: "a"}, "b": {Name: "b"}}
	data := map[DataID]DataNodeSpec{
		"d1": {Name: "d1", Type: value.Int()},
		"d2": {Name: "d2", Type: value.Int()},
	}
	inEdges := []InEdge{{Data: "d1", Module: "b"}, {Data: "d2", Module: "a"}}
	outEdges := []OutEdge{{Module: "a", Data: "d1"}, {Module: "b", Data: "d2"}}
	_, err := Build(Metadata{}, modules, data, inEdges, outEdges, nil, nil)
	if err == nil {
		t.Fatalf("expected cycle detection error")
	}
}

func TestDataIDByName(t *testing.T) {
	spec := simpleSpec(t)
	id, ok := spec.DataIDByName("out")
	if !ok || id != "d_out" {
		t.Fatalf("expected d_out, got %v ok=%v", id, ok)
	}
	if _, ok := spec.DataIDByName("missing"); ok {
		t.Fatalf("expected not found")
	}
}
