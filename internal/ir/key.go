package ir

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the byte length of identities and addresses.
const KeySize = 32

// Key is an opaque 32-byte identifier. Identities are Ed25519 public keys;
// addresses are either derived (off-curve) or caller-supplied.
type Key [KeySize]byte

// ZeroKey is the designated "absent" sentinel.
var ZeroKey Key

// ParseKey decodes a 64-character hex string into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse key: %w", err)
	}
	if len(raw) != KeySize {
		return k, fmt.Errorf("parse key: got %d bytes, want %d", len(raw), KeySize)
	}
	copy(k[:], raw)
	return k, nil
}

// MustParseKey is like ParseKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// KeyFromBytes copies b into a Key. b must be exactly KeySize bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("key from bytes: got %d bytes, want %d", len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// IsZero reports whether k is the absent sentinel.
func (k Key) IsZero() bool {
	return k == ZeroKey
}

// String returns the lowercase hex form of k.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first eight hex characters, for log lines.
func (k Key) Short() string {
	return k.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
