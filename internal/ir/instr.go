package ir

import (
	"github.com/jygan/glow/internal/tensor"
)

// InstrKind enumerates instruction kinds in the tensor IR.
type InstrKind uint8

const (
	// InstrAllocActivation reserves an activation buffer.
	InstrAllocActivation InstrKind = iota
	// InstrTensorView reinterprets a slice of another buffer at a static
	// byte offset.
	InstrTensorView
	// InstrDeallocActivation releases an activation buffer.
	InstrDeallocActivation
	// InstrMatMul multiplies two matrices into a destination buffer.
	InstrMatMul
	// InstrElementAdd adds two tensors elementwise into a destination.
	InstrElementAdd
	// InstrRelu applies max(x, 0) elementwise into a destination.
	InstrRelu
	// InstrCopy copies one buffer into another of the same size.
	InstrCopy
)

func (k InstrKind) String() string {
	switch k {
	case InstrAllocActivation:
		return "allocactivation"
	case InstrTensorView:
		return "tensorview"
	case InstrDeallocActivation:
		return "deallocactivation"
	case InstrMatMul:
		return "matmul"
	case InstrElementAdd:
		return "elementadd"
	case InstrRelu:
		return "relu"
	case InstrCopy:
		return "copy"
	}
	return "invalid"
}

// Instr is one tensor IR instruction. Buffer-producing instructions
// (allocations and views) are themselves Values; kernel instructions write
// into their first operand.
type Instr struct {
	name string
	ty   tensor.Type

	Kind InstrKind

	// Ops holds the operands. For kernel instructions the destination buffer
	// comes first, inputs after. For views, Ops[0] is the viewed source.
	Ops []Value

	// ViewOffset is the static byte offset of a tensor view into its source.
	// Only meaningful for InstrTensorView.
	ViewOffset uint64
}

// NewInstr creates an instruction with the given result type and operands.
func NewInstr(kind InstrKind, name string, ty tensor.Type, ops ...Value) *Instr {
	return &Instr{name: name, ty: ty, Kind: kind, Ops: ops}
}

// NewAllocActivation reserves a new activation buffer of the given type.
func NewAllocActivation(name string, ty tensor.Type) *Instr {
	return &Instr{name: name, ty: ty, Kind: InstrAllocActivation}
}

// NewTensorView reinterprets src at a static byte offset as a new type.
func NewTensorView(name string, ty tensor.Type, src Value, offset uint64) *Instr {
	return &Instr{name: name, ty: ty, Kind: InstrTensorView, Ops: []Value{src}, ViewOffset: offset}
}

// NewDeallocActivation releases the given activation buffer.
func NewDeallocActivation(name string, alloc Value) *Instr {
	return &Instr{name: name, ty: alloc.Type(), Kind: InstrDeallocActivation, Ops: []Value{alloc}}
}

// Name returns the instruction's result name.
func (in *Instr) Name() string { return in.name }

// SetName renames the instruction's result.
func (in *Instr) SetName(name string) { in.name = name }

// Type returns the result buffer type.
func (in *Instr) Type() tensor.Type { return in.ty }

// IsBufferOrigin reports whether this instruction owns backing storage of its
// own, as opposed to writing into or viewing another buffer.
func (in *Instr) IsBufferOrigin() bool {
	return in.Kind == InstrAllocActivation
}

// IsTensorValue reports whether this instruction names a logical tensor a
// debugger should be able to inspect: an allocation or a view.
func (in *Instr) IsTensorValue() bool {
	return in.Kind == InstrAllocActivation || in.Kind == InstrTensorView
}
