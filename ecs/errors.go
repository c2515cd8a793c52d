package ecs

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	ErrEmptySignature    = eris.New("system signature has no terms")
	ErrUnresolvedOperand = eris.New("term operand does not resolve to a component")
	ErrInvalidTerm       = eris.New("invalid term")
	ErrUnknownSystem     = eris.New("unknown system")
	ErrInProgress        = eris.New("world is running systems")
	ErrInvalidThreads    = eris.New("thread count must be at least 1")

	// Invariant violations. These are raised with panic, never returned.
	ErrStaleEntity      = eris.New("entity is not alive")
	ErrNotComponent     = eris.New("id is not a registered component")
	ErrColumnMismatch   = eris.New("column length does not match entity count")
	ErrRowOutOfRange    = eris.New("row out of range")
	ErrComponentSize    = eris.New("component size mismatch")
	ErrPointerComponent = eris.New("component type contains Go pointers")
	ErrWorkerPanic      = eris.New("system callback panicked on worker")
	ErrWorldClosed      = eris.New("world is closed")
)

// UnresolvedOperandError reports which term of a signature could not be resolved.
type UnresolvedOperandError struct {
	Term    int
	Operand EntityId
}

func (e UnresolvedOperandError) Error() string {
	return fmt.Sprintf("term %d: operand %v is not a registered component", e.Term, e.Operand)
}

func (e UnresolvedOperandError) Unwrap() error {
	return ErrUnresolvedOperand
}

func invariant(err error, format string, args ...any) {
	panic(eris.Wrapf(err, format, args...))
}
