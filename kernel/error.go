// Package kernel holds the handful of types every other package in this
// module depends on: the shared error type and the raw memory helpers used
// to operate on simulated physical memory.
package kernel

import "fmt"

// Error describes a kernel error. Per-subsystem sentinel errors are declared
// as package-level *Error variables (e.g. paging.ErrPageAlreadyMapped) so that
// callers can compare against them with ==.
type Error struct {
	// Module is the subsystem where the error occurred.
	Module string

	// Message is the error text.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Errorf builds a new *Error for module, formatting message the same way as
// fmt.Sprintf. It exists so that subsystems can report dynamic detail (an
// address, a frame number) without each one re-implementing string
// formatting around the Error type.
func Errorf(module, format string, args ...interface{}) *Error {
	return &Error{Module: module, Message: fmt.Sprintf(format, args...)}
}
