package guard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vaultguard/internal/ir"
)

// Kind categorizes guard failures.
type Kind string

const (
	// AuthorizationFailed indicates the claimed identity did not sign, or is
	// not the identity the operation requires.
	AuthorizationFailed Kind = "AuthorizationFailed"

	// OwnershipMismatch indicates the claimed identity is not the record's owner
	// or the record is not at the owner's derived address.
	OwnershipMismatch Kind = "OwnershipMismatch"

	// CompanionMismatch indicates the referenced companion is not the record's.
	CompanionMismatch Kind = "CompanionMismatch"

	// WrongLifecycleState is the general lifecycle failure.
	WrongLifecycleState Kind = "WrongLifecycleState"

	// UseAfterFree refines WrongLifecycleState: use of a freed record.
	UseAfterFree Kind = "UseAfterFree"

	// DoubleFree refines WrongLifecycleState: freeing a freed record.
	DoubleFree Kind = "DoubleFree"

	// UninitializedAccess refines WrongLifecycleState: reading a record that
	// was never initialized.
	UninitializedAccess Kind = "UninitializedAccess"

	// AlreadyInitialized refines WrongLifecycleState: initializing twice.
	AlreadyInitialized Kind = "AlreadyInitialized"

	// BufferOverflow indicates a write longer than the buffer capacity.
	BufferOverflow Kind = "BufferOverflow"

	// NullDereference indicates use of an absent reference.
	NullDereference Kind = "NullDereference"

	// InsufficientBalance indicates a withdrawal above the current balance.
	InsufficientBalance Kind = "InsufficientBalance"

	// ArithmeticOverflow indicates a credit past the representable range.
	ArithmeticOverflow Kind = "ArithmeticOverflow"

	// InvalidInstruction indicates a malformed instruction: unknown op, wrong
	// account list, undecodable payload.
	InvalidInstruction Kind = "InvalidInstruction"
)

// lifecycleKinds are the kinds that carry Expected/Actual states.
var lifecycleKinds = map[Kind]bool{
	WrongLifecycleState: true,
	UseAfterFree:        true,
	DoubleFree:          true,
	UninitializedAccess: true,
	AlreadyInitialized:  true,
}

// Failure is the typed rejection produced by a guard.
type Failure struct {
	// Kind identifies the failure category.
	Kind Kind `json:"kind"`

	// Guard names the guard that failed.
	Guard string `json:"guard"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Expected and Actual are set for lifecycle kinds.
	Expected ir.Lifecycle `json:"expected,omitempty"`
	Actual   ir.Lifecycle `json:"actual,omitempty"`

	// Details contains additional context.
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", f.Kind, f.Message)
	if f.IsLifecycle() {
		fmt.Fprintf(&b, " (expected=%s, actual=%s)", f.Expected, f.Actual)
	}
	if len(f.Details) > 0 {
		keys := make([]string, 0, len(f.Details))
		for k := range f.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, f.Details[k])
		}
	}
	return b.String()
}

// IsLifecycle reports whether the failure is WrongLifecycleState or one of
// its refinements.
func (f *Failure) IsLifecycle() bool {
	return lifecycleKinds[f.Kind]
}

// AsFailure extracts a *Failure from err.
// Uses errors.As to handle wrapped errors.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind returns true if err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}

// Invalid creates an InvalidInstruction failure.
func Invalid(format string, args ...any) *Failure {
	return &Failure{
		Kind:    InvalidInstruction,
		Guard:   "instruction",
		Message: fmt.Sprintf(format, args...),
	}
}
