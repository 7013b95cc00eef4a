package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultguard/internal/ir"
)

func TestBuildInstruction_Layouts(t *testing.T) {
	f := newFixture(t)
	record, signer, companion := f.vault(t, "alice"), f.keys.Key("alice"), f.holding(t, "alice")

	for _, op := range ir.Ops() {
		var payload any
		if TakesPayload(op) {
			payload = ir.AmountPayload{Amount: 1}
		}
		ins, err := BuildInstruction(op, record, signer, companion, payload)
		require.NoError(t, err, op.String())

		n, ok := AccountCount(op)
		require.True(t, ok)
		require.Len(t, ins.Accounts, n, op.String())
		assert.Equal(t, record, ins.Accounts[0].Key)
		assert.Equal(t, n > 1, ins.Accounts[0].IsMutable, "%s record mutability", op)
		if n > 1 {
			assert.Equal(t, ir.Authorizer(signer), ins.Accounts[1])
		}
		if n > 2 {
			assert.Equal(t, ir.Mutable(companion), ins.Accounts[2])
		}
		assert.Equal(t, TakesPayload(op), len(ins.Payload) > 0)
	}
}

func TestBuildInstruction_MatchesFixture(t *testing.T) {
	f := newFixture(t)

	built, err := BuildInstruction(ir.OpWithdraw, f.vault(t, "alice"), f.keys.Key("alice"), f.holding(t, "alice"),
		ir.AmountPayload{Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, f.balanceIns(t, ir.OpWithdraw, "alice", "alice", 5), built)
}

func TestBuildInstruction_UnknownOp(t *testing.T) {
	_, err := BuildInstruction(ir.Op(99), ir.ZeroKey, ir.ZeroKey, ir.ZeroKey, nil)
	require.Error(t, err)
}
