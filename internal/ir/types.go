package ir

import (
	"fmt"
	"math/bits"
)

// Lifecycle is a record's position in its
// Uninitialized -> Initialized -> Active -> Freed progression.
type Lifecycle uint8

const (
	Uninitialized Lifecycle = iota
	Initialized
	Active
	Freed
)

var lifecycleNames = map[Lifecycle]string{
	Uninitialized: "uninitialized",
	Initialized:   "initialized",
	Active:        "active",
	Freed:         "freed",
}

// String returns the lowercase state name.
func (l Lifecycle) String() string {
	if name, ok := lifecycleNames[l]; ok {
		return name
	}
	return fmt.Sprintf("lifecycle(%d)", uint8(l))
}

// ParseLifecycle maps a state name back to its Lifecycle value.
func ParseLifecycle(s string) (Lifecycle, error) {
	for l, name := range lifecycleNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle state %q", s)
}

// RecordKind distinguishes vault records from their companion holdings.
type RecordKind string

const (
	// KindVault is an owner-bound record at a derived address.
	KindVault RecordKind = "vault"

	// KindHolding is the companion balance account linked to a vault.
	// Its owner is the vault address.
	KindHolding RecordKind = "holding"
)

// Record is the unit of state.
//
// INVARIANTS:
//   - Owner never changes after creation
//   - Companion, once set, never changes
//   - len(Buffer) == Capacity; Written <= Capacity
//   - Lifecycle only moves forward, except the explicit Freed -> Active reopen
type Record struct {
	Address   Key        `cbor:"1,keyasint" json:"address"`
	Owner     Key        `cbor:"2,keyasint" json:"owner"`
	Companion Key        `cbor:"3,keyasint" json:"companion"`
	Kind      RecordKind `cbor:"4,keyasint" json:"kind"`
	Balance   uint64     `cbor:"5,keyasint" json:"balance"`
	Lifecycle Lifecycle  `cbor:"6,keyasint" json:"lifecycle"`
	Capacity  uint32     `cbor:"7,keyasint" json:"capacity"`
	Buffer    []byte     `cbor:"8,keyasint" json:"buffer"`
	Written   uint32     `cbor:"9,keyasint" json:"written"`
	Sensitive uint64     `cbor:"10,keyasint" json:"sensitive"`
	Reference Key        `cbor:"11,keyasint" json:"reference"`
	Salt      uint8      `cbor:"12,keyasint" json:"salt"`
}

// NewRecord returns the default-zero record for addr. Only initialize
// transitions start from this value.
func NewRecord(addr Key) Record {
	return Record{Address: addr, Lifecycle: Uninitialized}
}

// Clone returns a deep copy so working-set mutations never alias stored state.
func (r Record) Clone() Record {
	c := r
	if r.Buffer != nil {
		c.Buffer = make([]byte, len(r.Buffer))
		copy(c.Buffer, r.Buffer)
	}
	return c
}

// Contents returns the written prefix of the buffer.
func (r Record) Contents() []byte {
	if int(r.Written) > len(r.Buffer) {
		return r.Buffer
	}
	return r.Buffer[:r.Written]
}

// AddBalance returns a+b, or ok=false if the sum overflows uint64.
func AddBalance(a, b uint64) (sum uint64, ok bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// SubBalance returns a-b, or ok=false if b exceeds a.
func SubBalance(a, b uint64) (diff uint64, ok bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// MarshalText implements encoding.TextMarshaler.
func (l Lifecycle) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lifecycle) UnmarshalText(text []byte) error {
	parsed, err := ParseLifecycle(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
