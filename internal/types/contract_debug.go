//go:build bicdebug

package types

// In debug builds a mismatched IndexId is a programming error we want to
// surface immediately at the call site rather than let propagate as a
// plain error return.
func requireType(operation string, want IndexType, id IndexId) error {
	panic(&ContractViolation{Operation: operation, Want: want, Got: id.Type})
}
