package llvm

import (
	"fmt"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
	lltypes "github.com/llir/llvm/ir/types"
)

// Instructions in llir carry their attachments as a struct field with no
// shared accessor, so reading and writing !dbg goes through these switches.
// The emitter produces only the instruction kinds listed here; a new kind
// must be added to both switches.

func instAttachments(inst llvmir.Instruction) []*metadata.Attachment {
	switch i := inst.(type) {
	case *llvmir.InstAlloca:
		return i.Metadata
	case *llvmir.InstStore:
		return i.Metadata
	case *llvmir.InstLoad:
		return i.Metadata
	case *llvmir.InstCall:
		return i.Metadata
	case *llvmir.InstGetElementPtr:
		return i.Metadata
	case *llvmir.InstBitCast:
		return i.Metadata
	}
	return nil
}

func attachDebugLoc(inst llvmir.Instruction, loc *metadata.DILocation) bool {
	att := &metadata.Attachment{Name: "dbg", Node: loc}
	switch i := inst.(type) {
	case *llvmir.InstAlloca:
		i.Metadata = append(i.Metadata, att)
	case *llvmir.InstStore:
		i.Metadata = append(i.Metadata, att)
	case *llvmir.InstLoad:
		i.Metadata = append(i.Metadata, att)
	case *llvmir.InstCall:
		i.Metadata = append(i.Metadata, att)
	case *llvmir.InstGetElementPtr:
		i.Metadata = append(i.Metadata, att)
	case *llvmir.InstBitCast:
		i.Metadata = append(i.Metadata, att)
	default:
		return false
	}
	return true
}

func termAttachments(term llvmir.Terminator) []*metadata.Attachment {
	switch t := term.(type) {
	case *llvmir.TermRet:
		return t.Metadata
	case *llvmir.TermBr:
		return t.Metadata
	}
	return nil
}

func attachDebugTermLoc(term llvmir.Terminator, loc *metadata.DILocation) bool {
	att := &metadata.Attachment{Name: "dbg", Node: loc}
	switch t := term.(type) {
	case *llvmir.TermRet:
		t.Metadata = append(t.Metadata, att)
	case *llvmir.TermBr:
		t.Metadata = append(t.Metadata, att)
	default:
		return false
	}
	return true
}

// mdArg lets a metadata node travel as a call operand, the form the
// llvm.dbg.declare intrinsic takes its variable and expression in.
type mdArg struct {
	node metadata.Node
}

func (a mdArg) String() string {
	return fmt.Sprintf("%s %s", a.Type(), a.Ident())
}

func (a mdArg) Type() lltypes.Type { return lltypes.Metadata }

func (a mdArg) Ident() string { return a.node.Ident() }

func hasDebugLoc(atts []*metadata.Attachment) bool {
	for _, att := range atts {
		if att.Name == "dbg" {
			return true
		}
	}
	return false
}
