// Package alloc plans buffer storage for a compiled function. Every weight
// and activation is assigned one of three memory regions and a static byte
// offset inside it; the regions' base addresses are only bound at run time,
// when the caller passes them into the compiled entry function.
package alloc

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/jygan/glow/internal/ir"
)

// ValueKind names the memory region backing a value.
type ValueKind uint8

const (
	// ConstantWeight lives in the read-only weights region.
	ConstantWeight ValueKind = iota
	// MutableWeight lives in the caller-updatable weights region.
	MutableWeight
	// Activation lives in the scratch region for intermediate results.
	Activation
)

func (k ValueKind) String() string {
	switch k {
	case ConstantWeight:
		return "constant-weight"
	case MutableWeight:
		return "mutable-weight"
	case Activation:
		return "activation"
	}
	return "invalid"
}

// Alignment of every buffer within its region, in bytes.
const Alignment = 64

// Info is the allocation plan: region and offset per value, plus the total
// size of each region. Offsets are keyed by origin values; views share their
// origin's assignment shifted by the view's static delta.
type Info struct {
	ValueKinds map[ir.Value]ValueKind
	Offsets    map[ir.Value]uint64

	ConstantWeightsSize uint64
	MutableWeightsSize  uint64
	ActivationsSize     uint64
}

// Plan assigns storage for every weight of the module and every activation of
// its entry function. The plan is deterministic: offsets follow declaration
// order within each region.
func Plan(m *ir.Module) (*Info, error) {
	if m == nil || m.Main == nil {
		return nil, fmt.Errorf("alloc: nil module")
	}
	info := &Info{
		ValueKinds: make(map[ir.Value]ValueKind),
		Offsets:    make(map[ir.Value]uint64),
	}

	var constTop, mutTop uint64
	for _, w := range m.Weights {
		size, err := safecast.Conv[uint64](w.Type().SizeInBytes())
		if err != nil {
			return nil, fmt.Errorf("alloc: weight %q size overflow: %w", w.Name(), err)
		}
		if w.Mut == ir.Mutable {
			info.ValueKinds[w] = MutableWeight
			info.Offsets[w] = mutTop
			mutTop += alignUp(size)
		} else {
			info.ValueKinds[w] = ConstantWeight
			info.Offsets[w] = constTop
			constTop += alignUp(size)
		}
	}

	// Activations use a bump allocator over program order. Buffers are not
	// reused after dealloc; overlap-free layout keeps every tensor
	// addressable for the whole run, which the debug records depend on.
	var actTop uint64
	for _, in := range m.Main.Instrs {
		switch in.Kind {
		case ir.InstrAllocActivation:
			size, err := safecast.Conv[uint64](in.Type().SizeInBytes())
			if err != nil {
				return nil, fmt.Errorf("alloc: activation %q size overflow: %w", in.Name(), err)
			}
			info.ValueKinds[in] = Activation
			info.Offsets[in] = actTop
			actTop += alignUp(size)
		case ir.InstrTensorView:
			origin := ir.Origin(in)
			kind, ok := info.ValueKinds[origin]
			if !ok {
				return nil, fmt.Errorf("alloc: view %q origin %q not allocated", in.Name(), origin.Name())
			}
			info.ValueKinds[in] = kind
			info.Offsets[in] = info.Offsets[origin] + viewDelta(in)
		}
	}

	info.ConstantWeightsSize = constTop
	info.MutableWeightsSize = mutTop
	info.ActivationsSize = actTop
	return info, nil
}

// Assigned returns the region and offset of a value, resolving views to their
// origin's region.
func (info *Info) Assigned(v ir.Value) (ValueKind, uint64, bool) {
	kind, ok := info.ValueKinds[v]
	if !ok {
		return 0, 0, false
	}
	return kind, info.Offsets[v], true
}

// viewDelta accumulates the static byte offsets along a view chain.
func viewDelta(v ir.Value) uint64 {
	var delta uint64
	for {
		in, ok := v.(*ir.Instr)
		if !ok || in.Kind != ir.InstrTensorView {
			return delta
		}
		delta += in.ViewOffset
		v = in.Ops[0]
	}
}

func alignUp(n uint64) uint64 {
	return (n + Alignment - 1) &^ uint64(Alignment-1)
}
