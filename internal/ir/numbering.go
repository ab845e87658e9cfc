package ir

// Numbering assigns every instruction of a function a stable index,
// established once before lowering begins. The numbering is total and
// injective over the function's instructions, so indices remain valid even
// when the backend lowers instructions out of order.
type Numbering struct {
	index map[*Instr]int
	count int
}

// NewNumbering numbers f's instructions 0..len(Instrs)-1 in program order.
func NewNumbering(f *Function) *Numbering {
	n := &Numbering{index: make(map[*Instr]int, len(f.Instrs))}
	for i, in := range f.Instrs {
		n.index[in] = i
	}
	n.count = len(f.Instrs)
	return n
}

// InstrNumber returns the stable index of in, and whether in belongs to the
// numbered function.
func (n *Numbering) InstrNumber(in *Instr) (int, bool) {
	idx, ok := n.index[in]
	return idx, ok
}

// Len returns the number of numbered instructions.
func (n *Numbering) Len() int { return n.count }
