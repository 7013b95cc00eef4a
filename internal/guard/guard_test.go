package guard

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultguard/internal/ir"
)

// signerSet is a test-only Verifier backed by a fixed set of identities.
type signerSet map[ir.Key]bool

func (s signerSet) Verified(k ir.Key) bool { return s[k] }

var (
	owner    = ir.Key{0x01}
	attacker = ir.Key{0x02}
	admin    = ir.Key{0x03}
	holding  = ir.Key{0x04}
)

func activeVault() *ir.Record {
	return &ir.Record{
		Address:   ir.Key{0x10},
		Owner:     owner,
		Companion: holding,
		Kind:      ir.KindVault,
		Balance:   100,
		Lifecycle: ir.Active,
		Capacity:  64,
		Buffer:    make([]byte, 64),
	}
}

func TestAuthorized_EqualityAloneNeverPasses(t *testing.T) {
	rec := activeVault()

	// Attacker names the owner's key but cannot sign for it.
	err := Evaluate(Authorized(rec, signerSet{attacker: true}, owner))
	require.Error(t, err)
	assert.True(t, IsKind(err, AuthorizationFailed))
}

func TestAuthorized_SignedNonOwner(t *testing.T) {
	rec := activeVault()

	err := Evaluate(Authorized(rec, signerSet{attacker: true}, attacker))
	assert.True(t, IsKind(err, OwnershipMismatch))
}

func TestAuthorized_OwnerSigned(t *testing.T) {
	rec := activeVault()
	assert.NoError(t, Evaluate(Authorized(rec, signerSet{owner: true}, owner)))
}

func TestSigner_ZeroKeyNeverVerifies(t *testing.T) {
	err := Evaluate(Signer(signerSet{ir.ZeroKey: true}, ir.ZeroKey))
	assert.True(t, IsKind(err, AuthorizationFailed))
}

func TestEvaluate_ShortCircuits(t *testing.T) {
	ran := false
	later := NewFunc("later", func() *Failure {
		ran = true
		return nil
	})

	err := Evaluate(Bounds(10, 5), later)
	assert.True(t, IsKind(err, BufferOverflow))
	assert.False(t, ran, "guards after the first failure must not run")
}

func TestEvaluate_FirstFailureWins(t *testing.T) {
	rec := activeVault()
	rec.Lifecycle = ir.Freed

	// Both authorization and lifecycle fail; authorization is reported.
	err := Evaluate(Authorized(rec, signerSet{}, owner), ForRelease(rec))
	assert.True(t, IsKind(err, AuthorizationFailed))
}

func TestEvaluate_AllPass(t *testing.T) {
	rec := activeVault()
	err := Evaluate(
		Authorized(rec, signerSet{owner: true}, owner),
		Companion(rec, holding),
		ForUse(rec),
		Bounds(19, int(rec.Capacity)),
	)
	assert.NoError(t, err)
}

func TestEvaluate_NilIsUntypedNil(t *testing.T) {
	err := Evaluate()
	assert.True(t, err == nil, "Evaluate must not return a typed nil")
}

func TestCompanion(t *testing.T) {
	rec := activeVault()
	assert.Nil(t, Companion(rec, holding).Check())

	f := Companion(rec, ir.Key{0x99}).Check()
	require.NotNil(t, f)
	assert.Equal(t, CompanionMismatch, f.Kind)

	rec.Companion = ir.ZeroKey
	f = Companion(rec, ir.ZeroKey).Check()
	require.NotNil(t, f, "an unset companion never matches")
}

func TestLifecycleRefinements(t *testing.T) {
	tests := []struct {
		name   string
		state  ir.Lifecycle
		build  func(*ir.Record) Guard
		expect Kind
	}{
		{"use after free", ir.Freed, ForUse, UseAfterFree},
		{"use before init", ir.Uninitialized, ForUse, UninitializedAccess},
		{"use while initialized", ir.Initialized, ForUse, WrongLifecycleState},
		{"double free", ir.Freed, ForRelease, DoubleFree},
		{"free before activation", ir.Initialized, ForRelease, WrongLifecycleState},
		{"initialize twice", ir.Initialized, Fresh, AlreadyInitialized},
		{"initialize active", ir.Active, Fresh, AlreadyInitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := activeVault()
			rec.Lifecycle = tt.state

			f := tt.build(rec).Check()
			require.NotNil(t, f)
			assert.Equal(t, tt.expect, f.Kind)
			assert.True(t, f.IsLifecycle())
			assert.Equal(t, tt.state, f.Actual)
		})
	}
}

func TestLifecycle_Passes(t *testing.T) {
	rec := activeVault()
	assert.Nil(t, ForUse(rec).Check())
	assert.Nil(t, ForRelease(rec).Check())

	rec.Lifecycle = ir.Uninitialized
	assert.Nil(t, Fresh(rec).Check())
}

func TestInitialized(t *testing.T) {
	rec := activeVault()
	assert.Nil(t, Initialized(rec).Check())

	rec.Lifecycle = ir.Freed
	assert.Nil(t, Initialized(rec).Check(), "a freed record was initialized")

	rec.Lifecycle = ir.Uninitialized
	f := Initialized(rec).Check()
	require.NotNil(t, f)
	assert.Equal(t, UninitializedAccess, f.Kind)
}

func TestBounds(t *testing.T) {
	assert.Nil(t, Bounds(64, 64).Check())

	f := Bounds(65, 64).Check()
	require.NotNil(t, f)
	assert.Equal(t, BufferOverflow, f.Kind)
	assert.Equal(t, "65", f.Details["len"])
}

func TestNonNull(t *testing.T) {
	assert.Nil(t, NonNull(ir.Key{1}, "reference").Check())

	f := NonNull(ir.ZeroKey, "reference").Check()
	require.NotNil(t, f)
	assert.Equal(t, NullDereference, f.Kind)
	assert.Contains(t, f.Message, "reference")
}

func TestSufficientAndCreditable(t *testing.T) {
	rec := activeVault()

	assert.Nil(t, Sufficient(rec, 100).Check())
	f := Sufficient(rec, 101).Check()
	require.NotNil(t, f)
	assert.Equal(t, InsufficientBalance, f.Kind)

	assert.Nil(t, Creditable(rec, 1).Check())
	rec.Balance = math.MaxUint64
	f = Creditable(rec, 1).Check()
	require.NotNil(t, f)
	assert.Equal(t, ArithmeticOverflow, f.Kind)
}

func TestPrivileged(t *testing.T) {
	rec := activeVault()

	assert.Nil(t, Privileged(rec, admin, admin).Check())

	f := Privileged(rec, admin, attacker).Check()
	require.NotNil(t, f)
	assert.Equal(t, AuthorizationFailed, f.Kind)

	f = Privileged(rec, ir.ZeroKey, ir.ZeroKey).Check()
	require.NotNil(t, f, "an unconfigured authority authorizes nobody")

	f = Privileged(rec, owner, owner).Check()
	require.NotNil(t, f, "the owner may not act as privileged authority on its own record")
}

func TestDerived(t *testing.T) {
	assert.Nil(t, Derived(ir.Key{1}, ir.Key{1}).Check())

	f := Derived(ir.Key{1}, ir.Key{2}).Check()
	require.NotNil(t, f)
	assert.Equal(t, OwnershipMismatch, f.Kind)
}

func TestDerivedCompanion(t *testing.T) {
	assert.Nil(t, DerivedCompanion(holding, holding).Check())

	f := DerivedCompanion(ir.Key{0x20}, holding).Check()
	require.NotNil(t, f)
	assert.Equal(t, CompanionMismatch, f.Kind)
	assert.Equal(t, "derived_companion", f.Guard)
}

func TestOfKind(t *testing.T) {
	vault := activeVault()
	assert.Nil(t, OfKind(vault, ir.KindVault).Check())

	h := &ir.Record{Address: holding, Owner: vault.Address, Kind: ir.KindHolding, Lifecycle: ir.Active}
	f := OfKind(h, ir.KindVault).Check()
	require.NotNil(t, f)
	assert.Equal(t, InvalidInstruction, f.Kind)

	fresh := ir.NewRecord(ir.Key{0x30})
	assert.Nil(t, OfKind(&fresh, ir.KindVault).Check(), "kindless records are left to lifecycle guards")
}

func TestLive(t *testing.T) {
	tests := []struct {
		state ir.Lifecycle
		want  Kind
	}{
		{ir.Uninitialized, UninitializedAccess},
		{ir.Initialized, ""},
		{ir.Active, ""},
		{ir.Freed, UseAfterFree},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			rec := activeVault()
			rec.Lifecycle = tt.state
			f := Live(rec).Check()
			if tt.want == "" {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Kind)
			assert.True(t, f.IsLifecycle())
		})
	}
}

func TestWritable(t *testing.T) {
	assert.Nil(t, Writable(ir.Mutable(ir.Key{1}), "record").Check())

	f := Writable(ir.ReadOnly(ir.Key{1}), "record").Check()
	require.NotNil(t, f)
	assert.Equal(t, InvalidInstruction, f.Kind)
}

func TestFailure_ErrorAndUnwrap(t *testing.T) {
	f := &Failure{Kind: DoubleFree, Message: "record is freed", Expected: ir.Active, Actual: ir.Freed}
	assert.Equal(t, "DoubleFree: record is freed (expected=active, actual=freed)", f.Error())

	wrapped := fmt.Errorf("process: %w", f)
	got, ok := AsFailure(wrapped)
	require.True(t, ok)
	assert.Same(t, f, got)
	assert.True(t, IsKind(wrapped, DoubleFree))
	assert.False(t, IsKind(errors.New("plain"), DoubleFree))
}

func TestFailure_ErrorDetailsSorted(t *testing.T) {
	f := &Failure{Kind: BufferOverflow, Message: "too long", Details: map[string]string{"len": "100", "capacity": "64"}}
	assert.Equal(t, "BufferOverflow: too long capacity=64 len=100", f.Error())
}
