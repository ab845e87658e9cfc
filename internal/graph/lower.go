package graph

import (
	"fmt"

	"github.com/jygan/glow/internal/ir"
)

// Lower translates a verified graph into the instruction IR. Variables become
// weight buffers, node outputs become activation allocations, reshapes become
// zero-offset tensor views, and every live activation is deallocated at the
// end of the function.
func Lower(g *Module) (*ir.Module, error) {
	m := ir.NewModule(g.Name)
	values := make(map[string]ir.Value, len(g.Vars)+len(g.Nodes))

	for _, v := range g.Vars {
		mut := ir.Constant
		if v.Mutable {
			mut = ir.Mutable
		}
		w := ir.NewWeightVar(v.Name, v.Type, mut)
		m.AddWeight(w)
		values[v.Name] = w
	}

	var allocs []*ir.Instr
	for i, node := range g.Nodes {
		ops := make([]ir.Value, len(node.Inputs))
		for j, name := range node.Inputs {
			v, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("lower: node %d: unknown input %q", i, name)
			}
			ops[j] = v
		}
		switch node.Kind {
		case NodeReshape:
			view := ir.NewTensorView(node.Output, node.OutType, ops[0], 0)
			m.Main.Append(view)
			values[node.Output] = view
		case NodeSave:
			copyIn := ir.NewInstr(ir.InstrCopy, fmt.Sprintf("save%d", i), ops[0].Type(), ops[0], ops[1])
			m.Main.Append(copyIn)
		default:
			dest := ir.NewAllocActivation(node.Output, node.OutType)
			m.Main.Append(dest)
			allocs = append(allocs, dest)
			values[node.Output] = dest

			kind, err := kernelKind(node.Kind)
			if err != nil {
				return nil, fmt.Errorf("lower: node %d: %w", i, err)
			}
			kernelOps := append([]ir.Value{dest}, ops...)
			m.Main.Append(ir.NewInstr(kind, node.Output+".op", node.OutType, kernelOps...))
		}
	}

	// Release in reverse allocation order.
	for i := len(allocs) - 1; i >= 0; i-- {
		m.Main.Append(ir.NewDeallocActivation(allocs[i].Name()+".free", allocs[i]))
	}

	if err := ir.Validate(m); err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	return m, nil
}

func kernelKind(k NodeKind) (ir.InstrKind, error) {
	switch k {
	case NodeMatMul:
		return ir.InstrMatMul, nil
	case NodeAdd:
		return ir.InstrElementAdd, nil
	case NodeRelu:
		return ir.InstrRelu, nil
	}
	return 0, fmt.Errorf("no kernel for node kind %s", k)
}
