// Package graph holds the operator-level form of a model between manifest
// loading and IR lowering.
package graph

import (
	"fmt"

	"github.com/jygan/glow/internal/model"
	"github.com/jygan/glow/internal/tensor"
)

// NodeKind enumerates supported graph operations.
type NodeKind uint8

const (
	// NodeMatMul is a 2-D matrix multiplication.
	NodeMatMul NodeKind = iota
	// NodeAdd is an elementwise addition with broadcasting over the
	// leading dimension.
	NodeAdd
	// NodeRelu is an elementwise max(x, 0).
	NodeRelu
	// NodeReshape reinterprets a tensor with a new shape of equal size.
	NodeReshape
	// NodeSave copies a result into a mutable placeholder.
	NodeSave
)

func (k NodeKind) String() string {
	switch k {
	case NodeMatMul:
		return "matmul"
	case NodeAdd:
		return "add"
	case NodeRelu:
		return "relu"
	case NodeReshape:
		return "reshape"
	case NodeSave:
		return "save"
	}
	return "invalid"
}

// Variable is a named weight or placeholder tensor.
type Variable struct {
	Name    string
	Type    tensor.Type
	Mutable bool
	// Data holds the trained contents for weights; nil for placeholders.
	Data []byte
}

// Node is one operation; Inputs reference variables or earlier node outputs
// by name.
type Node struct {
	Kind   NodeKind
	Inputs []string
	Output string
	// Dims gives the target shape for reshape nodes.
	Dims []int
	// OutType is resolved during Build.
	OutType tensor.Type
}

// Module is a verified graph ready for lowering.
type Module struct {
	Name  string
	Vars  []*Variable
	Nodes []*Node

	byName map[string]tensor.Type
}

// Lookup returns the tensor type bound to a name.
func (m *Module) Lookup(name string) (tensor.Type, bool) {
	ty, ok := m.byName[name]
	return ty, ok
}

// Build verifies a loaded manifest against its weights bundle and produces
// the graph form. Shape checking happens here so lowering can assume a
// well-typed graph.
func Build(man *model.Manifest, bundle *model.Bundle) (*Module, error) {
	g := &Module{
		Name:   man.Name,
		byName: make(map[string]tensor.Type),
	}
	for _, p := range man.Placeholders {
		ty, err := p.Type()
		if err != nil {
			return nil, err
		}
		g.Vars = append(g.Vars, &Variable{Name: p.Name, Type: ty, Mutable: true})
		g.byName[p.Name] = ty
	}
	for _, w := range man.Weights {
		ty, err := w.Type()
		if err != nil {
			return nil, err
		}
		v := &Variable{Name: w.Name, Type: ty, Mutable: w.Mutable}
		if bundle != nil {
			if data, ok := bundle.Lookup(w.Data); ok {
				v.Data = data
			}
		}
		g.Vars = append(g.Vars, v)
		g.byName[w.Name] = ty
	}
	for i, op := range man.Ops {
		node, err := g.buildNode(op)
		if err != nil {
			return nil, fmt.Errorf("graph: op %d: %w", i, err)
		}
		g.Nodes = append(g.Nodes, node)
		if node.Output != "" {
			g.byName[node.Output] = node.OutType
		}
	}
	return g, nil
}

func (g *Module) buildNode(op model.OpDecl) (*Node, error) {
	ins := make([]tensor.Type, len(op.Inputs))
	for i, name := range op.Inputs {
		ty, ok := g.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown input %q", op.Kind, name)
		}
		ins[i] = ty
	}
	node := &Node{Inputs: op.Inputs, Output: op.Output, Dims: op.Dims}
	switch op.Kind {
	case "matmul":
		node.Kind = NodeMatMul
		if len(ins) != 2 {
			return nil, fmt.Errorf("matmul wants 2 inputs, got %d", len(ins))
		}
		a, b := ins[0], ins[1]
		if len(a.Dims) != 2 || len(b.Dims) != 2 || a.Dims[1] != b.Dims[0] || a.Elem != b.Elem {
			return nil, fmt.Errorf("matmul shape mismatch %s x %s", a, b)
		}
		node.OutType = tensor.NewType(a.Elem, a.Dims[0], b.Dims[1])
	case "add":
		node.Kind = NodeAdd
		if len(ins) != 2 {
			return nil, fmt.Errorf("add wants 2 inputs, got %d", len(ins))
		}
		if !ins[0].Equal(ins[1]) {
			return nil, fmt.Errorf("add shape mismatch %s vs %s", ins[0], ins[1])
		}
		node.OutType = ins[0]
	case "relu":
		node.Kind = NodeRelu
		if len(ins) != 1 {
			return nil, fmt.Errorf("relu wants 1 input, got %d", len(ins))
		}
		node.OutType = ins[0]
	case "reshape":
		node.Kind = NodeReshape
		if len(ins) != 1 {
			return nil, fmt.Errorf("reshape wants 1 input, got %d", len(ins))
		}
		if len(op.Dims) == 0 {
			return nil, fmt.Errorf("reshape needs dims")
		}
		out := tensor.NewType(ins[0].Elem, op.Dims...)
		if out.NumElements() != ins[0].NumElements() {
			return nil, fmt.Errorf("reshape %s to %s changes element count", ins[0], out)
		}
		node.OutType = out
	case "save":
		node.Kind = NodeSave
		if len(ins) != 2 {
			return nil, fmt.Errorf("save wants dest and src, got %d", len(ins))
		}
		if ins[0].SizeInBytes() != ins[1].SizeInBytes() {
			return nil, fmt.Errorf("save size mismatch %s vs %s", ins[0], ins[1])
		}
		node.OutType = ins[0]
	default:
		return nil, fmt.Errorf("unknown op kind %q", op.Kind)
	}
	return node, nil
}
