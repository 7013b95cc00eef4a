package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		Address:   Key{1},
		Owner:     Key{2},
		Companion: Key{3},
		Kind:      KindVault,
		Balance:   75,
		Lifecycle: Active,
		Capacity:  4,
		Buffer:    []byte{'a', 'b', 0, 0},
		Written:   2,
		Sensitive: 12345,
		Salt:      254,
	}
}

func TestEncodeRecord_RoundTrip(t *testing.T) {
	r := sampleRecord()

	data, err := EncodeRecord(r)
	require.NoError(t, err)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestEncodeRecord_Deterministic(t *testing.T) {
	a, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)
	b, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStateDigest(t *testing.T) {
	r := sampleRecord()
	d1 := MustStateDigest(r)

	r.Balance++
	d2 := MustStateDigest(r)

	assert.NotEqual(t, d1, d2, "any field change must change the digest")
	assert.Len(t, d1.String(), 64)
}

func TestInstructionID_SeqIsPartOfIdentity(t *testing.T) {
	ins := Instruction{Op: OpUse, Accounts: []AccountMeta{ReadOnly(Key{1})}}

	id1, err := InstructionID(ins, 1)
	require.NoError(t, err)
	id2, err := InstructionID(ins, 2)
	require.NoError(t, err)
	again, err := InstructionID(ins, 1)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, again)
}

func TestMessage_ExcludesSignatures(t *testing.T) {
	ins := Instruction{
		Op:       OpWithdraw,
		Accounts: []AccountMeta{Mutable(Key{1}), Authorizer(Key{2}), Mutable(Key{3})},
		Payload:  MustEncodePayload(AmountPayload{Amount: 25}),
	}
	msg, err := Message(ins)
	require.NoError(t, err)

	tx := Transaction{Instruction: ins, Signatures: []Signature{{Signer: Key{2}, Sig: []byte{1}}}}
	wire, err := EncodeTransaction(tx)
	require.NoError(t, err)
	assert.NotEqual(t, msg, wire)

	decoded, err := DecodeTransaction(wire)
	require.NoError(t, err)
	assert.Equal(t, tx, decoded)

	again, err := Message(decoded.Instruction)
	require.NoError(t, err)
	assert.Equal(t, msg, again)
}

func TestDecodePayload_Strict(t *testing.T) {
	data := MustEncodePayload(map[int]any{1: uint64(10), 99: "extra"})

	var p AmountPayload
	err := DecodePayload(data, &p)
	assert.Error(t, err, "unknown payload fields must be rejected")

	err = DecodePayload(nil, &p)
	assert.ErrorContains(t, err, "empty payload")

	require.NoError(t, DecodePayload(MustEncodePayload(AmountPayload{Amount: 10}), &p))
	assert.Equal(t, uint64(10), p.Amount)
}
