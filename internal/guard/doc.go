// Package guard implements the precondition checks evaluated before any
// record mutation.
//
// Guards are independent predicates. The processor composes them per
// operation into a Chain whose order is fixed: authorization first, then
// ownership and companion binding, then lifecycle, then bounds and
// arithmetic. The first failing guard short-circuits the chain and its
// Failure is returned unchanged; no later guard runs.
//
// Authorization and ownership are deliberately separate guards. Ownership
// is equality between the stored owner and a claimed identity; it is
// necessary but never sufficient. Authorization requires the claimed
// identity to have produced a verified signature. Authorized composes both.
package guard
