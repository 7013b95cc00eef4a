package engine

import (
	"fmt"

	"github.com/roach88/vaultguard/internal/ir"
)

// AccountCount returns how many accounts op takes.
func AccountCount(op ir.Op) (int, bool) {
	h, ok := handlers[op]
	return h.accounts, ok
}

// TakesPayload reports whether op carries a payload.
func TakesPayload(op ir.Op) bool {
	return handlers[op].payload
}

// BuildInstruction lays out the standard account list for op: the record
// first, the authorizer second, the companion holding third. Read-only ops
// get a single read-only record entry. A nil payload is left empty.
func BuildInstruction(op ir.Op, record, signer, companion ir.Key, payload any) (ir.Instruction, error) {
	n, ok := AccountCount(op)
	if !ok {
		return ir.Instruction{}, fmt.Errorf("build instruction: unknown op %s", op)
	}

	ins := ir.Instruction{Op: op}
	switch n {
	case 1:
		ins.Accounts = []ir.AccountMeta{ir.ReadOnly(record)}
	case 2:
		ins.Accounts = []ir.AccountMeta{ir.Mutable(record), ir.Authorizer(signer)}
	default:
		ins.Accounts = []ir.AccountMeta{ir.Mutable(record), ir.Authorizer(signer), ir.Mutable(companion)}
	}

	if payload != nil {
		raw, err := ir.EncodePayload(payload)
		if err != nil {
			return ir.Instruction{}, fmt.Errorf("build instruction %s: %w", op, err)
		}
		ins.Payload = raw
	}
	return ins, nil
}
