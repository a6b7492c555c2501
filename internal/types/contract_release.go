//go:build !bicdebug

package types

func requireType(operation string, want IndexType, id IndexId) error {
	return &ContractViolation{Operation: operation, Want: want, Got: id.Type}
}
