// Package kernel contains the types and helpers shared by every kernel
// sub-system.
package kernel

// Error describes a kernel error. Kernel errors are always declared as
// package-level pointers to an Error value and compared by identity; no code
// path in the memory core may allocate, so errors.New and fmt.Errorf are off
// limits.
type Error struct {
	// The module that reported the error (e.g. "vmm", "pmm").
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
