// Package ir defines the instruction-level representation of a compiled
// tensor function: named weight buffers, activation allocations, views and
// kernel instructions. The backend lowers this form to machine code; the
// textual dump produced by Dump is the authoritative source artifact for
// synthesized debug locations.
package ir

import (
	"github.com/jygan/glow/internal/tensor"
)

// Mutability distinguishes trained weights that never change from weights the
// caller may overwrite between invocations.
type Mutability uint8

const (
	// Constant marks a weight that is read-only at run time.
	Constant Mutability = iota
	// Mutable marks a weight the caller may update between runs.
	Mutable
)

func (m Mutability) String() string {
	if m == Mutable {
		return "mutable"
	}
	return "const"
}

// Value is anything that names a tensor buffer: a weight variable or an
// instruction that materializes a buffer (allocation or view).
type Value interface {
	Name() string
	SetName(string)
	Type() tensor.Type
}

// WeightVar is a module-level weight buffer backed by one of the two weight
// memory regions.
type WeightVar struct {
	name string
	ty   tensor.Type
	Mut  Mutability
}

// NewWeightVar creates a named weight buffer.
func NewWeightVar(name string, ty tensor.Type, mut Mutability) *WeightVar {
	return &WeightVar{name: name, ty: ty, Mut: mut}
}

// Name returns the weight's name.
func (w *WeightVar) Name() string { return w.name }

// SetName renames the weight.
func (w *WeightVar) SetName(name string) { w.name = name }

// Type returns the weight's tensor type.
func (w *WeightVar) Type() tensor.Type { return w.ty }

// Origin resolves a value through any chain of tensor views down to the
// underlying allocation or weight. Debug records and storage offsets are keyed
// by the origin, never by the view.
func Origin(v Value) Value {
	for {
		in, ok := v.(*Instr)
		if !ok || in.Kind != InstrTensorView {
			return v
		}
		v = in.Ops[0]
	}
}
