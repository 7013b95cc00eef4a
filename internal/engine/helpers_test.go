package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultguard/internal/guard"
	"github.com/roach88/vaultguard/internal/ir"
	"github.com/roach88/vaultguard/internal/store"
	"github.com/roach88/vaultguard/internal/testutil"
)

// fixture wires a processor over a temp-dir store with deterministic keys.
// Names: alice and bob own vaults, mallory attacks, authority is the
// configured privileged identity.
type fixture struct {
	ctx   context.Context
	store *store.Store
	proc  *Processor
	keys  *testutil.Keyring
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	s := setupTestStore(t)
	keys := testutil.NewKeyring("alice", "bob", "mallory", "authority")

	base := []Option{
		WithAuthority(keys.Key("authority")),
		WithLogger(discardLogger()),
		WithTraceGenerator(testutil.NewSequentialTraces("t")),
	}
	return &fixture{
		ctx:   context.Background(),
		store: s,
		proc:  New(s, append(base, opts...)...),
		keys:  keys,
	}
}

// vault returns name's canonical vault address.
func (f *fixture) vault(t *testing.T, name string) ir.Key {
	t.Helper()
	addr, _, err := f.proc.Derive(f.keys.Key(name))
	require.NoError(t, err)
	return addr
}

// holding returns the canonical holding address for name's vault.
func (f *fixture) holding(t *testing.T, name string) ir.Key {
	t.Helper()
	addr, err := f.proc.DeriveHolding(f.vault(t, name))
	require.NoError(t, err)
	return addr
}

func (f *fixture) sign(t *testing.T, ins ir.Instruction, signers ...string) ir.Transaction {
	t.Helper()
	tx := ir.Transaction{Instruction: ins}
	for _, name := range signers {
		signed, err := Sign(ins, f.keys.Private(name))
		require.NoError(t, err)
		tx.Signatures = append(tx.Signatures, signed.Signatures...)
	}
	return tx
}

func (f *fixture) process(t *testing.T, tx ir.Transaction) *Outcome {
	t.Helper()
	out, err := f.proc.Process(f.ctx, tx)
	require.NoError(t, err)
	return out
}

// requireRejected asserts out was rejected with kind.
func requireRejected(t *testing.T, out *Outcome, kind guard.Kind) {
	t.Helper()
	require.Equal(t, ir.StatusRejected, out.Status, "expected rejection %s", kind)
	require.NotNil(t, out.Failure)
	require.Equal(t, kind, out.Failure.Kind, "failure: %v", out.Failure)
	require.Empty(t, out.Records)
}

// requireCommitted asserts out was committed.
func requireCommitted(t *testing.T, out *Outcome) {
	t.Helper()
	require.Equal(t, ir.StatusCommitted, out.Status, "unexpected failure: %v", out.Failure)
	require.Nil(t, out.Failure)
}

func (f *fixture) record(t *testing.T, addr ir.Key) ir.Record {
	t.Helper()
	rec, found, err := f.store.GetRecord(f.ctx, addr)
	require.NoError(t, err)
	require.True(t, found, "record %s not stored", addr.Short())
	return rec
}

type initOpts struct {
	deposit   uint64
	capacity  uint32
	activate  bool
	reference ir.Key
}

func (f *fixture) initializeIns(t *testing.T, name string, o initOpts) ir.Instruction {
	t.Helper()
	return ir.Instruction{
		Op: ir.OpInitialize,
		Accounts: []ir.AccountMeta{
			ir.Mutable(f.vault(t, name)),
			ir.Authorizer(f.keys.Key(name)),
			ir.Mutable(f.holding(t, name)),
		},
		Payload: ir.MustEncodePayload(ir.InitializePayload{
			InitialDeposit: o.deposit,
			Capacity:       o.capacity,
			Activate:       o.activate,
			Reference:      o.reference,
		}),
	}
}

// initialize creates name's vault and requires success.
func (f *fixture) initialize(t *testing.T, name string, o initOpts) *Outcome {
	t.Helper()
	out := f.process(t, f.sign(t, f.initializeIns(t, name, o), name))
	requireCommitted(t, out)
	return out
}

// setSensitive stores v in name's sensitive field and requires success.
func (f *fixture) setSensitive(t *testing.T, name string, v uint64) {
	t.Helper()
	ins := f.recordIns(t, ir.OpSetSensitive, name, name, ir.SensitivePayload{Value: v})
	requireCommitted(t, f.process(t, f.sign(t, ins, name)))
}

// balanceIns builds a deposit/withdraw/sweep against owner's vault with
// claimed as the authorizing account.
func (f *fixture) balanceIns(t *testing.T, op ir.Op, owner, claimed string, amount uint64) ir.Instruction {
	t.Helper()
	ins := ir.Instruction{
		Op: op,
		Accounts: []ir.AccountMeta{
			ir.Mutable(f.vault(t, owner)),
			ir.Authorizer(f.keys.Key(claimed)),
			ir.Mutable(f.holding(t, owner)),
		},
	}
	if op != ir.OpSweep {
		ins.Payload = ir.MustEncodePayload(ir.AmountPayload{Amount: amount})
	}
	return ins
}

// recordIns builds a two-account op (record, signer) with an optional payload.
func (f *fixture) recordIns(t *testing.T, op ir.Op, owner, claimed string, payload any) ir.Instruction {
	t.Helper()
	ins := ir.Instruction{
		Op: op,
		Accounts: []ir.AccountMeta{
			ir.Mutable(f.vault(t, owner)),
			ir.Authorizer(f.keys.Key(claimed)),
		},
	}
	if payload != nil {
		ins.Payload = ir.MustEncodePayload(payload)
	}
	return ins
}

func (f *fixture) useTx(t *testing.T, owner string) ir.Transaction {
	t.Helper()
	return ir.Transaction{Instruction: ir.Instruction{
		Op:       ir.OpUse,
		Accounts: []ir.AccountMeta{ir.ReadOnly(f.vault(t, owner))},
	}}
}

func (f *fixture) derefTx(t *testing.T, owner string) ir.Transaction {
	t.Helper()
	return ir.Transaction{Instruction: ir.Instruction{
		Op:       ir.OpDereference,
		Accounts: []ir.AccountMeta{ir.ReadOnly(f.vault(t, owner))},
	}}
}
