package ir

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. Same logical value
// always produces identical bytes, which signatures and digests rely on.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored for stored
// records so older readers survive additive changes.
var decMode cbor.DecMode

// strictDecMode rejects unknown fields. Payloads are caller input and a
// misspelled field must not silently decode to zero.
var strictDecMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Key, Lifecycle and Op serialize as text via MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("ir: CBOR encoder initialization failed: " + err.Error())
	}

	decOptions := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}
	decMode, err = decOptions.DecMode()
	if err != nil {
		panic("ir: CBOR decoder initialization failed: " + err.Error())
	}

	decOptions.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	strictDecMode, err = decOptions.DecMode()
	if err != nil {
		panic("ir: strict CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v, ignoring unknown fields.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeRecord returns the canonical encoding of r.
func EncodeRecord(r Record) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a stored record encoding.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := decMode.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// Message returns the bytes signers sign: the canonical encoding of ins.
func Message(ins Instruction) ([]byte, error) {
	data, err := encMode.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("encode instruction: %w", err)
	}
	return data, nil
}

// EncodeTransaction returns the wire encoding of tx.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	data, err := encMode.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return data, nil
}

// DecodeTransaction parses a wire-encoded transaction.
func DecodeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	if err := strictDecMode.Unmarshal(data, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// EncodePayload encodes an op payload struct.
func EncodePayload(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// MustEncodePayload is like EncodePayload but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEncodePayload(v any) []byte {
	data, err := EncodePayload(v)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodePayload strictly decodes an op payload into v.
func DecodePayload(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("decode payload: empty payload")
	}
	if err := strictDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
