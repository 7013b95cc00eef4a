package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an infrastructure-level processing error.
//
// Guard failures are never RuntimeErrors; they are returned inside an
// Outcome with status rejected. A RuntimeError means the instruction was
// not processed at all:
//   - Halted: the processor has been disabled
//   - Stopped: the submission loop is no longer accepting work
//   - Derivation: no canonical address could be derived
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// InstructionID identifies the affected instruction, when known.
	InstructionID string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeHalted indicates the processor was halted.
	ErrCodeHalted RuntimeErrorCode = "PROCESSOR_HALTED"

	// ErrCodeStopped indicates the submission loop was stopped.
	ErrCodeStopped RuntimeErrorCode = "PROCESSOR_STOPPED"

	// ErrCodeDerivation indicates address derivation failed.
	ErrCodeDerivation RuntimeErrorCode = "DERIVATION_FAILED"
)

var (
	// ErrProcessorHalted is returned for every instruction after Halt.
	ErrProcessorHalted = &RuntimeError{Code: ErrCodeHalted, Message: "processor has been halted"}

	// ErrProcessorStopped is returned by Submit after Stop.
	ErrProcessorStopped = &RuntimeError{Code: ErrCodeStopped, Message: "submission loop stopped"}
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.InstructionID != "" {
		msg = fmt.Sprintf("%s (instruction=%s)", msg, e.InstructionID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is matches any RuntimeError with the same code, so
// errors.Is(err, ErrProcessorHalted) works on wrapped copies.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	return ok && t.Code == e.Code
}

// IsHalted returns true if err reports a halted processor.
func IsHalted(err error) bool {
	return errors.Is(err, ErrProcessorHalted)
}

// newDerivationError wraps a deriver failure.
func newDerivationError(id string, err error) *RuntimeError {
	return &RuntimeError{
		Code:          ErrCodeDerivation,
		Message:       "could not derive canonical address",
		InstructionID: id,
		Err:           err,
	}
}
