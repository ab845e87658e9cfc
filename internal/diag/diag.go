// Package diag defines the compiler's diagnostics: severities, codes and
// the reporters that collect or print them.
package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevInfo is for informational diagnostics.
	SevInfo Severity = iota
	// SevWarning is for warning diagnostics.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Code identifies a diagnostic class, stable across releases.
type Code string

const (
	CodeManifest Code = "GLW0001" // malformed or inconsistent manifest
	CodeWeights  Code = "GLW0002" // weight bundle mismatch
	CodeGraph    Code = "GLW0003" // graph construction or shape error
	CodeIR       Code = "GLW0004" // IR validation failure
	CodeBackend  Code = "GLW0005" // lowering or debug info failure
)

// Diagnostic is one reported condition.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Notes    []string
}

// Reporter is the contract phases use to hand out diagnostics.
type Reporter interface {
	Report(d Diagnostic)
}

// Bag collects diagnostics in report order.
type Bag struct {
	diags []Diagnostic
}

func (b *Bag) Report(d Diagnostic) {
	b.diags = append(b.diags, d)
}

// All returns the collected diagnostics.
func (b *Bag) All() []Diagnostic { return b.diags }

// HasErrors reports whether any collected diagnostic is an error.
func (b *Bag) HasErrors() bool {
	for _, d := range b.diags {
		if d.Severity == SevError {
			return true
		}
	}
	return false
}

// Error builds a SevError diagnostic.
func Error(code Code, msg string, notes ...string) Diagnostic {
	return Diagnostic{Severity: SevError, Code: code, Message: msg, Notes: notes}
}

// Warning builds a SevWarning diagnostic.
func Warning(code Code, msg string, notes ...string) Diagnostic {
	return Diagnostic{Severity: SevWarning, Code: code, Message: msg, Notes: notes}
}
