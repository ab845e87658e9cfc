package ir

import (
	"errors"
	"fmt"
)

// Validate checks structural invariants of a module's entry function.
// Returns a joined error when any invariant is violated.
func Validate(m *Module) error {
	if m == nil || m.Main == nil {
		return nil
	}
	var errs []error

	seen := make(map[string]struct{}, len(m.Weights)+len(m.Main.Instrs))
	for _, w := range m.Weights {
		if w.Name() == "" {
			errs = append(errs, errors.New("weight with empty name"))
			continue
		}
		if _, dup := seen[w.Name()]; dup {
			errs = append(errs, fmt.Errorf("duplicate value name %q", w.Name()))
		}
		seen[w.Name()] = struct{}{}
	}

	declared := make(map[Value]struct{}, len(m.Weights))
	for _, w := range m.Weights {
		declared[w] = struct{}{}
	}

	live := make(map[*Instr]struct{})
	for i, in := range m.Main.Instrs {
		if in.Name() == "" {
			errs = append(errs, fmt.Errorf("instr %d: empty result name", i))
		} else if in.IsTensorValue() {
			if _, dup := seen[in.Name()]; dup {
				errs = append(errs, fmt.Errorf("instr %d: duplicate value name %q", i, in.Name()))
			}
			seen[in.Name()] = struct{}{}
		}
		if err := validateInstr(i, in, declared, live); err != nil {
			errs = append(errs, err)
		}
		declared[in] = struct{}{}
	}
	for in := range live {
		errs = append(errs, fmt.Errorf("activation %q never deallocated", in.Name()))
	}
	return errors.Join(errs...)
}

func validateInstr(i int, in *Instr, declared map[Value]struct{}, live map[*Instr]struct{}) error {
	for _, op := range in.Ops {
		if _, ok := declared[op]; !ok {
			return fmt.Errorf("instr %d (%s): operand %q used before declaration", i, in.Kind, op.Name())
		}
	}
	switch in.Kind {
	case InstrAllocActivation:
		if len(in.Ops) != 0 {
			return fmt.Errorf("instr %d: allocactivation takes no operands", i)
		}
		live[in] = struct{}{}
	case InstrTensorView:
		if len(in.Ops) != 1 {
			return fmt.Errorf("instr %d: tensorview takes one operand", i)
		}
		origin := Origin(in)
		if oi, ok := origin.(*Instr); ok && !oi.IsBufferOrigin() {
			return fmt.Errorf("instr %d: view origin %q is not an allocation", i, origin.Name())
		}
		end := in.ViewOffset + uint64(in.Type().SizeInBytes())
		if end > uint64(in.Ops[0].Type().SizeInBytes()) {
			return fmt.Errorf("instr %d: view [%d, %d) exceeds source %q", i, in.ViewOffset, end, in.Ops[0].Name())
		}
	case InstrDeallocActivation:
		if len(in.Ops) != 1 {
			return fmt.Errorf("instr %d: deallocactivation takes one operand", i)
		}
		alloc, ok := in.Ops[0].(*Instr)
		if !ok || alloc.Kind != InstrAllocActivation {
			return fmt.Errorf("instr %d: dealloc of non-allocation %q", i, in.Ops[0].Name())
		}
		if _, isLive := live[alloc]; !isLive {
			return fmt.Errorf("instr %d: double dealloc of %q", i, alloc.Name())
		}
		delete(live, alloc)
	case InstrMatMul:
		if len(in.Ops) != 3 {
			return fmt.Errorf("instr %d: matmul takes dest, lhs, rhs", i)
		}
	case InstrElementAdd:
		if len(in.Ops) != 3 {
			return fmt.Errorf("instr %d: elementadd takes dest, lhs, rhs", i)
		}
	case InstrRelu:
		if len(in.Ops) != 2 {
			return fmt.Errorf("instr %d: relu takes dest, src", i)
		}
	case InstrCopy:
		if len(in.Ops) != 2 {
			return fmt.Errorf("instr %d: copy takes dest, src", i)
		}
		if in.Ops[0].Type().SizeInBytes() != in.Ops[1].Type().SizeInBytes() {
			return fmt.Errorf("instr %d: copy size mismatch %q -> %q", i, in.Ops[1].Name(), in.Ops[0].Name())
		}
	default:
		return fmt.Errorf("instr %d: unknown kind %d", i, in.Kind)
	}
	return nil
}
