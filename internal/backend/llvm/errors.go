package llvm

import "errors"

// Debug info failure kinds. All are fatal for the compilation; they are
// distinct so callers and tests can tell misconfiguration (unsupported
// type), pipeline bugs (missing subprogram, mismatch) and verifier findings
// apart.
var (
	// ErrUnsupportedDebugType marks a machine type with no debug
	// representation. The supported set is closed by design of the emitted
	// code; hitting this is a compiler defect, not an input error.
	ErrUnsupportedDebugType = errors.New("unsupported debug type")

	// ErrNoIRBody means the synthesized source dump has no body marker, so
	// no instruction line can be trusted.
	ErrNoIRBody = errors.New("IR dump has no instruction body")

	// ErrSubprogramMismatch means a function already carries a subprogram
	// different from the tracked one.
	ErrSubprogramMismatch = errors.New("function subprogram mismatch")

	// ErrMissingSubprogram means a defined function reached the final debug
	// pass without a subprogram descriptor.
	ErrMissingSubprogram = errors.New("defined function without subprogram")

	// ErrDebugNameCollision means two distinct tensors normalized to the
	// same debug name; emitting either record would make a debugger misread
	// memory.
	ErrDebugNameCollision = errors.New("debug name collision")

	// ErrBrokenModule and ErrBrokenDebugInfo split verifier findings into
	// code defects and metadata defects.
	ErrBrokenModule    = errors.New("broken module")
	ErrBrokenDebugInfo = errors.New("broken debug info")
)
