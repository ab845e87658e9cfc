package ir

// NormalizeName replaces every byte that cannot be part of a C identifier
// with an underscore, preserving length. Debuggers key variables by name, so
// every weight and activation gets normalized before debug records are built.
// The transformation is idempotent.
func NormalizeName(name string) string {
	b := []byte(name)
	changed := false
	for i, c := range b {
		if isIdentByte(c) {
			continue
		}
		b[i] = '_'
		changed = true
	}
	if !changed {
		return name
	}
	return string(b)
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
