package ir

// Function is an ordered list of instructions operating over the module's
// weights. Instruction order is program order; the stable numbering and the
// textual dump both derive from it.
type Function struct {
	Name   string
	Instrs []*Instr

	parent *Module
}

// Module owns the weights and the entry function of one compiled model.
type Module struct {
	Name    string
	Weights []*WeightVar
	Main    *Function
}

// NewModule creates an empty module. The entry function carries the model
// name; the machine-level entry symbol is the backend's concern.
func NewModule(name string) *Module {
	m := &Module{Name: name}
	m.Main = &Function{Name: name, parent: m}
	return m
}

// AddWeight registers a weight buffer with the module.
func (m *Module) AddWeight(w *WeightVar) {
	m.Weights = append(m.Weights, w)
}

// Module returns the function's owning module.
func (f *Function) Module() *Module { return f.parent }

// Append adds an instruction at the end of the function.
func (f *Function) Append(in *Instr) {
	f.Instrs = append(f.Instrs, in)
}
