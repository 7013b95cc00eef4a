package guard

import (
	"fmt"
	"strconv"

	"github.com/roach88/vaultguard/internal/ir"
)

// Verifier supplies the boolean signature verdict per claimed identity.
// The guard layer never sees signatures, only verdicts.
type Verifier interface {
	Verified(identity ir.Key) bool
}

// Guard is a named precondition.
type Guard interface {
	Name() string
	Check() *Failure
}

// Func adapts a closure into a Guard.
type Func struct {
	name  string
	check func() *Failure
}

// NewFunc creates a Guard from a name and check function.
func NewFunc(name string, check func() *Failure) Func {
	return Func{name: name, check: check}
}

// Name implements Guard.
func (g Func) Name() string { return g.name }

// Check implements Guard.
func (g Func) Check() *Failure { return g.check() }

// Chain evaluates guards in order and stops at the first failure.
type Chain []Guard

// Name implements Guard.
func (c Chain) Name() string { return "chain" }

// Check implements Guard. Returns the first failure, or nil if every guard passes.
func (c Chain) Check() *Failure {
	for _, g := range c {
		if f := g.Check(); f != nil {
			return f
		}
	}
	return nil
}

// Evaluate runs guards in order. It returns nil when all pass, otherwise the
// first failure as an error.
func Evaluate(guards ...Guard) error {
	if f := Chain(guards).Check(); f != nil {
		return f
	}
	return nil
}

// Signer passes only if claimed produced a verified signature.
func Signer(v Verifier, claimed ir.Key) Guard {
	return NewFunc("authorization", func() *Failure {
		if claimed.IsZero() || !v.Verified(claimed) {
			return &Failure{
				Kind:    AuthorizationFailed,
				Guard:   "authorization",
				Message: "no verified signature from claimed identity",
				Details: map[string]string{"identity": claimed.String()},
			}
		}
		return nil
	})
}

// Owner passes only if claimed equals the record's owner.
// Equality alone never authorizes; pair with Signer.
func Owner(rec *ir.Record, claimed ir.Key) Guard {
	return NewFunc("ownership", func() *Failure {
		if rec.Owner != claimed {
			return &Failure{
				Kind:    OwnershipMismatch,
				Guard:   "ownership",
				Message: "claimed identity is not the record owner",
				Details: map[string]string{"claimed": claimed.String(), "owner": rec.Owner.String()},
			}
		}
		return nil
	})
}

// Authorized is the full authorization contract: a verified signature from
// claimed, and claimed equal to the record's owner, checked in that order.
func Authorized(rec *ir.Record, v Verifier, claimed ir.Key) Guard {
	return Chain{Signer(v, claimed), Owner(rec, claimed)}
}

// Derived passes only if the record sits at the canonical address derived
// from its claimed owner.
func Derived(addr, canonical ir.Key) Guard {
	return NewFunc("derived_address", func() *Failure {
		if addr != canonical {
			return &Failure{
				Kind:    OwnershipMismatch,
				Guard:   "derived_address",
				Message: "record address is not derived from the claimed owner",
				Details: map[string]string{"address": addr.String(), "canonical": canonical.String()},
			}
		}
		return nil
	})
}

// Privileged passes only if claimed is the configured authority and is not
// the record's own owner.
func Privileged(rec *ir.Record, authority, claimed ir.Key) Guard {
	return NewFunc("privileged", func() *Failure {
		if authority.IsZero() {
			return &Failure{
				Kind:    AuthorizationFailed,
				Guard:   "privileged",
				Message: "no privileged authority configured",
			}
		}
		if claimed != authority {
			return &Failure{
				Kind:    AuthorizationFailed,
				Guard:   "privileged",
				Message: "claimed identity is not the privileged authority",
				Details: map[string]string{"claimed": claimed.String()},
			}
		}
		if rec.Owner == claimed {
			return &Failure{
				Kind:    AuthorizationFailed,
				Guard:   "privileged",
				Message: "privileged authority must be distinct from the record owner",
			}
		}
		return nil
	})
}

// Companion passes only if referenced equals the record's companion address.
func Companion(rec *ir.Record, referenced ir.Key) Guard {
	return NewFunc("companion", func() *Failure {
		if rec.Companion.IsZero() || rec.Companion != referenced {
			return &Failure{
				Kind:    CompanionMismatch,
				Guard:   "companion",
				Message: "referenced companion is not linked to this record",
				Details: map[string]string{"referenced": referenced.String(), "companion": rec.Companion.String()},
			}
		}
		return nil
	})
}

// DerivedCompanion passes only if the companion sits at the address derived
// from its record.
func DerivedCompanion(addr, canonical ir.Key) Guard {
	return NewFunc("derived_companion", func() *Failure {
		if addr != canonical {
			return &Failure{
				Kind:    CompanionMismatch,
				Guard:   "derived_companion",
				Message: "companion address is not derived from the record address",
				Details: map[string]string{"companion": addr.String(), "canonical": canonical.String()},
			}
		}
		return nil
	})
}

// OfKind passes only if an initialized record has the given kind.
// Uninitialized records carry no kind and are left to the lifecycle guards.
func OfKind(rec *ir.Record, kind ir.RecordKind) Guard {
	return NewFunc("kind", func() *Failure {
		if rec.Lifecycle != ir.Uninitialized && rec.Kind != kind {
			return &Failure{
				Kind:    InvalidInstruction,
				Guard:   "kind",
				Message: fmt.Sprintf("record is a %s, not a %s", rec.Kind, kind),
			}
		}
		return nil
	})
}

// LifecycleGuard passes only if the record is in the expected state.
// Refinements map specific actual states to more precise kinds.
type LifecycleGuard struct {
	rec      *ir.Record
	expected ir.Lifecycle
	refine   map[ir.Lifecycle]Kind
}

// Lifecycle creates a guard requiring rec to be in expected.
func Lifecycle(rec *ir.Record, expected ir.Lifecycle) *LifecycleGuard {
	return &LifecycleGuard{rec: rec, expected: expected, refine: map[ir.Lifecycle]Kind{}}
}

// Refine reports kind instead of WrongLifecycleState when the record is in actual.
func (g *LifecycleGuard) Refine(actual ir.Lifecycle, kind Kind) *LifecycleGuard {
	g.refine[actual] = kind
	return g
}

// Name implements Guard.
func (g *LifecycleGuard) Name() string { return "lifecycle" }

// Check implements Guard.
func (g *LifecycleGuard) Check() *Failure {
	actual := g.rec.Lifecycle
	if actual == g.expected {
		return nil
	}
	kind, ok := g.refine[actual]
	if !ok {
		kind = WrongLifecycleState
	}
	return &Failure{
		Kind:     kind,
		Guard:    "lifecycle",
		Message:  fmt.Sprintf("record is %s", actual),
		Expected: g.expected,
		Actual:   actual,
	}
}

// ForUse requires Active, reporting UseAfterFree and UninitializedAccess.
func ForUse(rec *ir.Record) Guard {
	return Lifecycle(rec, ir.Active).
		Refine(ir.Freed, UseAfterFree).
		Refine(ir.Uninitialized, UninitializedAccess)
}

// ForRelease requires Active before transitioning to Freed, reporting DoubleFree.
func ForRelease(rec *ir.Record) Guard {
	return Lifecycle(rec, ir.Active).
		Refine(ir.Freed, DoubleFree).
		Refine(ir.Uninitialized, UninitializedAccess)
}

// Fresh requires Uninitialized, reporting AlreadyInitialized otherwise.
func Fresh(rec *ir.Record) Guard {
	return Lifecycle(rec, ir.Uninitialized).
		Refine(ir.Initialized, AlreadyInitialized).
		Refine(ir.Active, AlreadyInitialized).
		Refine(ir.Freed, AlreadyInitialized)
}

// Live passes for Initialized and Active records, the states in which the
// sensitive field is meaningful.
func Live(rec *ir.Record) Guard {
	return NewFunc("live", func() *Failure {
		switch rec.Lifecycle {
		case ir.Initialized, ir.Active:
			return nil
		case ir.Freed:
			return &Failure{
				Kind:     UseAfterFree,
				Guard:    "live",
				Message:  "record is freed",
				Expected: ir.Active,
				Actual:   ir.Freed,
			}
		default:
			return &Failure{
				Kind:     UninitializedAccess,
				Guard:    "live",
				Message:  "record was never initialized",
				Expected: ir.Initialized,
				Actual:   rec.Lifecycle,
			}
		}
	})
}

// Initialized passes only if the record has left Uninitialized.
// Required before reading the sensitive field.
func Initialized(rec *ir.Record) Guard {
	return NewFunc("initialized", func() *Failure {
		if rec.Lifecycle == ir.Uninitialized {
			return &Failure{
				Kind:     UninitializedAccess,
				Guard:    "initialized",
				Message:  "record was never initialized",
				Expected: ir.Initialized,
				Actual:   ir.Uninitialized,
			}
		}
		return nil
	})
}

// Bounds passes only if n <= capacity.
func Bounds(n, capacity int) Guard {
	return NewFunc("bounds", func() *Failure {
		if n > capacity {
			return &Failure{
				Kind:    BufferOverflow,
				Guard:   "bounds",
				Message: fmt.Sprintf("%d bytes exceed capacity %d", n, capacity),
				Details: map[string]string{"len": strconv.Itoa(n), "capacity": strconv.Itoa(capacity)},
			}
		}
		return nil
	})
}

// NonNull passes only if ref is not the absent sentinel.
func NonNull(ref ir.Key, field string) Guard {
	return NewFunc("non_null", func() *Failure {
		if ref.IsZero() {
			return &Failure{
				Kind:    NullDereference,
				Guard:   "non_null",
				Message: fmt.Sprintf("%s is absent", field),
			}
		}
		return nil
	})
}

// Sufficient passes only if amount <= rec.Balance.
func Sufficient(rec *ir.Record, amount uint64) Guard {
	return NewFunc("sufficient_balance", func() *Failure {
		if _, ok := ir.SubBalance(rec.Balance, amount); !ok {
			return &Failure{
				Kind:    InsufficientBalance,
				Guard:   "sufficient_balance",
				Message: fmt.Sprintf("withdrawal of %d exceeds balance %d", amount, rec.Balance),
			}
		}
		return nil
	})
}

// Creditable passes only if rec.Balance + amount fits in uint64.
func Creditable(rec *ir.Record, amount uint64) Guard {
	return NewFunc("checked_add", func() *Failure {
		if _, ok := ir.AddBalance(rec.Balance, amount); !ok {
			return &Failure{
				Kind:    ArithmeticOverflow,
				Guard:   "checked_add",
				Message: fmt.Sprintf("deposit of %d overflows balance %d", amount, rec.Balance),
			}
		}
		return nil
	})
}

// Writable passes only if the account entry is marked mutable.
func Writable(meta ir.AccountMeta, role string) Guard {
	return NewFunc("writable", func() *Failure {
		if !meta.IsMutable {
			return Invalid("%s account %s must be marked mutable", role, meta.Key.Short())
		}
		return nil
	})
}
