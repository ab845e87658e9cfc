package llvm

import (
	"errors"
	"strings"
	"testing"

	llvmir "github.com/llir/llvm/ir"
	lltypes "github.com/llir/llvm/ir/types"
)

func TestVerifyAcceptsEmittedModule(t *testing.T) {
	_, llmod, _ := emitTiny(t, true)

	var broken bool
	if err := verifyModule(llmod, &broken); err != nil {
		t.Fatalf("verifyModule() error: %v", err)
	}
	if broken {
		t.Error("clean module flagged as broken debug info")
	}
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	m := llvmir.NewModule()
	f := m.NewFunc("dangling", lltypes.Void)
	f.NewBlock("entry")

	var broken bool
	err := verifyModule(m, &broken)
	if err == nil || !strings.Contains(err.Error(), "no terminator") {
		t.Fatalf("verifyModule() = %v, want missing-terminator error", err)
	}
	if broken {
		t.Error("code defect flagged as broken debug info")
	}
}

func TestVerifyRejectsUnlistedCompileUnit(t *testing.T) {
	_, llmod, _ := emitTiny(t, true)
	delete(llmod.NamedMetadataDefs, "llvm.dbg.cu")

	var broken bool
	err := verifyModule(llmod, &broken)
	if err == nil || !strings.Contains(err.Error(), "not listed in llvm.dbg.cu") {
		t.Fatalf("verifyModule() = %v, want unlisted-unit error", err)
	}
	if !broken {
		t.Error("debug defect did not set the broken-debug-info flag")
	}
}

func TestVerifyRejectsMissingLocation(t *testing.T) {
	e, llmod, _ := emitTiny(t, true)

	// Strip the location from the first base-address store.
	st, ok := e.entry.Insts[0].(*llvmir.InstStore)
	if !ok {
		t.Fatalf("first entry instruction is %T, want store", e.entry.Insts[0])
	}
	st.Metadata = nil

	var broken bool
	err := verifyModule(llmod, &broken)
	if err == nil || !strings.Contains(err.Error(), "without location") {
		t.Fatalf("verifyModule() = %v, want missing-location error", err)
	}
	if !broken {
		t.Error("debug defect did not set the broken-debug-info flag")
	}
}

func TestVerifyClassifiesFailures(t *testing.T) {
	e, llmod, _ := emitTiny(t, true)
	delete(llmod.NamedMetadataDefs, "llvm.dbg.cu")
	if err := e.verifyEmittedModule(); !errors.Is(err, ErrBrokenDebugInfo) {
		t.Errorf("metadata defect = %v, want ErrBrokenDebugInfo", err)
	}

	e2, _, _ := emitTiny(t, true)
	e2.entry.Term = nil
	if err := e2.verifyEmittedModule(); !errors.Is(err, ErrBrokenModule) {
		t.Errorf("code defect = %v, want ErrBrokenModule", err)
	}
}
