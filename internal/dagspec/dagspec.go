// Package dagspec implements the DagSpec data model (§3): an immutable
// description of one compiled pipeline of typed modules connected through
// typed data nodes. Grounded on the teacher's dagNode/dag structs in
// services/orchestrator/dag_engine.go, generalized from a single
// DependsOn-list model to the spec's explicit in_edges/out_edges bipartite
// sets plus a precomputed reverse index.
package dagspec

import (
	"errors"
	"fmt"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// ModuleID and DataID are opaque node handles.
type ModuleID string
type DataID string

// Metadata describes a compiled pipeline.
type Metadata struct {
	Name        string
	Description string
	Version     string
}

// ModuleNodeSpec describes one module's typed port signature and options.
type ModuleNodeSpec struct {
	Name     string
	Consumes map[string]value.Type // input port name -> Type
	Produces map[string]value.Type // output port name -> Type
	Options  map[string]string
}

// DataNodeSpec describes one typed value slot in the DAG.
type DataNodeSpec struct {
	Name string
	Type value.Type
	// PortBindings maps an endpoint id (a module id) to the port name this
	// data node is bound to on that endpoint. A data node may appear as the
	// consumed port of many modules and the produced port of at most one.
	PortBindings map[ModuleID]string
}

// InEdge is a directed data->module connection.
type InEdge struct {
	Data   DataID
	Module ModuleID
}

// OutEdge is a directed module->data connection.
type OutEdge struct {
	Module ModuleID
	Data   DataID
}

// DagSpec is the immutable description of one compiled pipeline.
type DagSpec struct {
	Metadata Metadata

	Modules map[ModuleID]ModuleNodeSpec
	Data    map[DataID]DataNodeSpec

	InEdges  []InEdge
	OutEdges []OutEdge

	DeclaredOutputs []string
	OutputBindings  map[string]DataID // declared output name -> DataID

	// reverse index: precomputed for lookup performance on large DAGs
	// (§9). producerOf[d] is the unique module that produces DataID d, if
	// any. consumersOf[d] lists every module that consumes DataID d.
	producerOf  map[DataID]ModuleID
	consumersOf map[DataID][]ModuleID
	inputsOf    map[ModuleID][]InEdge
	outputsOf   map[ModuleID][]OutEdge
}

// Build validates the invariants in §3 and returns a DagSpec with its
// reverse index precomputed. modules/data/inEdges/outEdges/declaredOutputs/
// outputBindings are consumed and not mutated afterwards.
func Build(
	meta Metadata,
	modules map[ModuleID]ModuleNodeSpec,
	data map[DataID]DataNodeSpec,
	inEdges []InEdge,
	outEdges []OutEdge,
	declaredOutputs []string,
	outputBindings map[string]DataID,
) (*DagSpec, error) {
	d := &DagSpec{
		Metadata:        meta,
		Modules:         modules,
		Data:            data,
		InEdges:         inEdges,
		OutEdges:        outEdges,
		DeclaredOutputs: declaredOutputs,
		OutputBindings:  outputBindings,
		producerOf:      make(map[DataID]ModuleID),
		consumersOf:     make(map[DataID][]ModuleID),
		inputsOf:        make(map[ModuleID][]InEdge),
		outputsOf:       make(map[ModuleID][]OutEdge),
	}

	for _, e := range inEdges {
		if _, ok := data[e.Data]; !ok {
			return nil, fmt.Errorf("dagspec: in_edge references unknown data id %q", e.Data)
		}
		if _, ok := modules[e.Module]; !ok {
			return nil, fmt.Errorf("dagspec: in_edge references unknown module id %q", e.Module)
		}
		d.consumersOf[e.Data] = append(d.consumersOf[e.Data], e.Module)
		d.inputsOf[e.Module] = append(d.inputsOf[e.Module], e)
	}

	for _, e := range outEdges {
		if _, ok := data[e.Data]; !ok {
			return nil, fmt.Errorf("dagspec: out_edge references unknown data id %q", e.Data)
		}
		if _, ok := modules[e.Module]; !ok {
			return nil, fmt.Errorf("dagspec: out_edge references unknown module id %q", e.Module)
		}
		if existing, ok := d.producerOf[e.Data]; ok && existing != e.Module {
			return nil, fmt.Errorf("dagspec: data id %q has more than one producing module (%q and %q)", e.Data, existing, e.Module)
		}
		d.producerOf[e.Data] = e.Module
		d.outputsOf[e.Module] = append(d.outputsOf[e.Module], e)
	}

	for name, did := range outputBindings {
		if _, ok := data[did]; !ok {
			return nil, fmt.Errorf("dagspec: declared output %q references unknown data id %q", name, did)
		}
	}

	if err := d.checkAcyclic(); err != nil {
		return nil, err
	}

	return d, nil
}

// ProducerOf returns the unique module producing DataID d, if any.
func (d *DagSpec) ProducerOf(id DataID) (ModuleID, bool) {
	m, ok := d.producerOf[id]
	return m, ok
}

// ConsumersOf returns every module consuming DataID d.
func (d *DagSpec) ConsumersOf(id DataID) []ModuleID {
	return d.consumersOf[id]
}

// InputsOf returns every in-edge feeding module m.
func (d *DagSpec) InputsOf(m ModuleID) []InEdge {
	return d.inputsOf[m]
}

// OutputsOf returns every out-edge produced by module m.
func (d *DagSpec) OutputsOf(m ModuleID) []OutEdge {
	return d.outputsOf[m]
}

// DataIDByName finds the DataID whose spec.Name matches name, used when
// seeding the runtime's input cells (§4.9 "Seeding").
func (d *DagSpec) DataIDByName(name string) (DataID, bool) {
	for id, spec := range d.Data {
		if spec.Name == name {
			return id, true
		}
	}
	return "", false
}

// checkAcyclic verifies the bipartite graph induced by (in_edges U
// out_edges) between data and modules is acyclic, via a simple DFS over
// module nodes (module -> produced data -> consuming modules).
func (d *DagSpec) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[ModuleID]int, len(d.Modules))

	var visit func(m ModuleID) error
	visit = func(m ModuleID) error {
		switch color[m] {
		case gray:
			return errors.New("dagspec: cyclic dependency detected")
		case black:
			return nil
		}
		color[m] = gray
		for _, out := range d.outputsOf[m] {
			for _, next := range d.consumersOf[out.Data] {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[m] = black
		return nil
	}

	for m := range d.Modules {
		if err := visit(m); err != nil {
			return err
		}
	}
	return nil
}
