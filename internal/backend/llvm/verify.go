package llvm

import (
	"errors"
	"fmt"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
)

// verifyModule runs structural checks over the lowered module and its debug
// metadata. Debug defects set *brokenDebugInfo so the caller can report them
// as a distinct failure class; a module defect leaves the flag false.
func verifyModule(m *llvmir.Module, brokenDebugInfo *bool) error {
	var errs []error

	for _, f := range m.Funcs {
		for _, bb := range f.Blocks {
			if bb.Term == nil {
				errs = append(errs, fmt.Errorf("function %s: block %q has no terminator", f.GlobalName, bb.LocalName))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	var dbgErrs []error

	// Every compile unit reachable from attachments must be listed in
	// !llvm.dbg.cu, or the consumer silently drops it.
	listed := make(map[*metadata.DICompileUnit]bool)
	if named, ok := m.NamedMetadataDefs["llvm.dbg.cu"]; ok {
		for _, node := range named.Nodes {
			if cu, ok := node.(*metadata.DICompileUnit); ok {
				listed[cu] = true
			}
		}
	}

	for _, f := range m.Funcs {
		sp := functionSubprogram(f)
		if sp == nil {
			continue
		}
		if cu := sp.Unit; cu == nil || !listed[cu] {
			dbgErrs = append(dbgErrs, fmt.Errorf("function %s: subprogram unit not listed in llvm.dbg.cu", f.GlobalName))
		}
		for _, bb := range f.Blocks {
			for _, inst := range bb.Insts {
				if err := checkInstLocation(f, instAttachments(inst)); err != nil {
					dbgErrs = append(dbgErrs, err)
				}
			}
			if bb.Term != nil {
				if err := checkInstLocation(f, termAttachments(bb.Term)); err != nil {
					dbgErrs = append(dbgErrs, err)
				}
			}
		}
	}

	for _, g := range m.Globals {
		for _, att := range g.Metadata {
			if att.Name != "dbg" {
				continue
			}
			gve, ok := att.Node.(*metadata.DIGlobalVariableExpression)
			if !ok {
				dbgErrs = append(dbgErrs, fmt.Errorf("global %s: !dbg is %T, want global variable expression", g.GlobalName, att.Node))
				continue
			}
			if gve.Var == nil || gve.Expr == nil {
				dbgErrs = append(dbgErrs, fmt.Errorf("global %s: incomplete debug record", g.GlobalName))
			}
		}
	}

	if len(dbgErrs) > 0 {
		if brokenDebugInfo != nil {
			*brokenDebugInfo = true
		}
		return errors.Join(dbgErrs...)
	}
	return nil
}

// checkInstLocation enforces that inside a debug-tracked function every
// instruction carries a well-formed location.
func checkInstLocation(f *llvmir.Func, atts []*metadata.Attachment) error {
	for _, att := range atts {
		if att.Name != "dbg" {
			continue
		}
		loc, ok := att.Node.(*metadata.DILocation)
		if !ok {
			return fmt.Errorf("function %s: !dbg is %T, want location", f.GlobalName, att.Node)
		}
		if loc.Scope == nil {
			return fmt.Errorf("function %s: location without scope", f.GlobalName)
		}
		return nil
	}
	return fmt.Errorf("function %s: instruction without location", f.GlobalName)
}
