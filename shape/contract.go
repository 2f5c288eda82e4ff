package shape

import "fmt"

// ContractError is the panic value raised when a caller breaks an invariant
// that the public API never violates on its own: inserting the same
// transition edge twice, mutating a published property map, or using a
// dead shape ID.
type ContractError struct {
	Msg string
}

func (e *ContractError) Error() string { return "shape: contract violation: " + e.Msg }

func contractf(format string, args ...any) {
	panic(&ContractError{Msg: fmt.Sprintf(format, args...)})
}
