package ir

import "fmt"

// Op identifies the operation an instruction requests.
type Op uint8

const (
	OpInitialize Op = iota + 1
	OpActivate
	OpDeposit
	OpWithdraw
	OpSweep
	OpPrivilegedClose
	OpReopen
	OpUse
	OpFree
	OpWrite
	OpDereference
	OpSetReference
	OpSetSensitive
	OpComplex
)

var opNames = map[Op]string{
	OpInitialize:      "initialize",
	OpActivate:        "activate",
	OpDeposit:         "deposit",
	OpWithdraw:        "withdraw",
	OpSweep:           "sweep",
	OpPrivilegedClose: "privileged_close",
	OpReopen:          "reopen",
	OpUse:             "use",
	OpFree:            "free",
	OpWrite:           "write",
	OpDereference:     "dereference",
	OpSetReference:    "set_reference",
	OpSetSensitive:    "set_sensitive",
	OpComplex:         "complex",
}

// String returns the snake_case op name.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp maps an op name to its Op. The "op(N)" form produced by String for
// unknown values parses back to the same Op.
func ParseOp(s string) (Op, error) {
	for o, name := range opNames {
		if name == s {
			return o, nil
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(s, "op(%d)", &n); err == nil {
		return Op(n), nil
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// Ops returns every known op in numeric order.
func Ops() []Op {
	ops := make([]Op, 0, len(opNames))
	for o := OpInitialize; o <= OpComplex; o++ {
		ops = append(ops, o)
	}
	return ops
}

// AccountMeta is one entry of an instruction's ordered target list.
// IsAuthorizer is a claim; it only counts once a signature verifies it.
type AccountMeta struct {
	Key          Key  `cbor:"1,keyasint" json:"key"`
	IsAuthorizer bool `cbor:"2,keyasint" json:"is_authorizer"`
	IsMutable    bool `cbor:"3,keyasint" json:"is_mutable"`
}

// Instruction is the unit the processor consumes.
type Instruction struct {
	Op       Op            `cbor:"1,keyasint" json:"op"`
	Accounts []AccountMeta `cbor:"2,keyasint" json:"accounts"`
	Payload  []byte        `cbor:"3,keyasint" json:"payload,omitempty"`
}

// Signature is an Ed25519 signature by Signer over the instruction's
// canonical encoding.
type Signature struct {
	Signer Key    `cbor:"1,keyasint" json:"signer"`
	Sig    []byte `cbor:"2,keyasint" json:"sig"`
}

// Transaction pairs an instruction with the signatures authorizing it.
type Transaction struct {
	Instruction Instruction `cbor:"1,keyasint" json:"instruction"`
	Signatures  []Signature `cbor:"2,keyasint" json:"signatures"`
}

// Mutable is a convenience constructor for a writable account entry.
func Mutable(k Key) AccountMeta {
	return AccountMeta{Key: k, IsMutable: true}
}

// ReadOnly is a convenience constructor for a read-only account entry.
func ReadOnly(k Key) AccountMeta {
	return AccountMeta{Key: k}
}

// Authorizer is a convenience constructor for a signer entry.
func Authorizer(k Key) AccountMeta {
	return AccountMeta{Key: k, IsAuthorizer: true}
}

// InitializePayload configures a new vault.
type InitializePayload struct {
	InitialDeposit uint64 `cbor:"1,keyasint"`
	Capacity       uint32 `cbor:"2,keyasint"`
	Activate       bool   `cbor:"4,keyasint"`
	Reference      Key    `cbor:"5,keyasint"`
}

// AmountPayload carries a deposit or withdrawal amount.
type AmountPayload struct {
	Amount uint64 `cbor:"1,keyasint"`
}

// WritePayload carries bytes for a bounded write.
type WritePayload struct {
	Data []byte `cbor:"1,keyasint"`
}

// ReferencePayload sets or clears (zero key) a record's reference.
type ReferencePayload struct {
	Reference Key `cbor:"1,keyasint"`
}

// SensitivePayload stores a value in a record's sensitive field.
type SensitivePayload struct {
	Value uint64 `cbor:"1,keyasint"`
}

// ComplexAction selects the sub-operation of a complex instruction.
type ComplexAction uint8

const (
	// ComplexWrite is a bounded write of Data.
	ComplexWrite ComplexAction = iota + 1

	// ComplexFreeThenUse frees the record and then reads it, which always
	// fails with UseAfterFree and so commits nothing.
	ComplexFreeThenUse

	// ComplexFree frees the record.
	ComplexFree
)

// ComplexPayload carries one sub-operation for OpComplex.
type ComplexPayload struct {
	Action ComplexAction `cbor:"1,keyasint"`
	Data   []byte        `cbor:"2,keyasint"`
}

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(text []byte) error {
	parsed, err := ParseOp(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
