// Package derive computes deterministic record addresses from a namespace
// tag and an owning identity.
//
// A derived address binds a record to its owner without a lookup table: the
// processor re-derives the address from the claimed owner on every
// instruction and rejects any record that does not match. Candidates are
// hashed with a descending salt and the first candidate that is NOT a valid
// Ed25519 point wins, so no private key can ever sign for the address.
//
// Only the canonical (first-found) salt is accepted. A caller cannot pick a
// different salt and obtain a second valid address for the same logical
// record.
package derive

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/vaultguard/internal/ir"
)

// addressMarker is appended to every candidate preimage so derived addresses
// cannot collide with hashes computed for any other purpose.
const addressMarker = "vaultguard/derived-address/v1"

// DefaultMaxSalt is the upper bound the salt scan starts from.
const DefaultMaxSalt = 255

// ErrDerivationExhausted is returned when every salt in [0, MaxSalt]
// produces an on-curve candidate.
var ErrDerivationExhausted = errors.New("derivation exhausted: no off-curve address within salt bound")

// ErrOnCurve is returned by CreateAddress when the candidate for a specific
// salt is a valid curve point and therefore not usable as an address.
var ErrOnCurve = errors.New("candidate address lies on the ed25519 curve")

// Deriver computes canonical addresses. The zero value is not usable; use New.
type Deriver struct {
	maxSalt uint8
	onCurve func(ir.Key) bool
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithMaxSalt sets the salt scan bound.
func WithMaxSalt(maxSalt uint8) Option {
	return func(d *Deriver) {
		d.maxSalt = maxSalt
	}
}

// WithCurveCheck replaces the on-curve predicate. Used by tests to force
// exhaustion deterministically.
func WithCurveCheck(onCurve func(ir.Key) bool) Option {
	return func(d *Deriver) {
		d.onCurve = onCurve
	}
}

// New creates a Deriver scanning from DefaultMaxSalt unless overridden.
func New(opts ...Option) *Deriver {
	d := &Deriver{
		maxSalt: DefaultMaxSalt,
		onCurve: IsOnCurve,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxSalt returns the configured scan bound.
func (d *Deriver) MaxSalt() uint8 {
	return d.maxSalt
}

// Derive returns the canonical address and salt for (namespace, owner).
// Pure and deterministic: the same inputs always produce the same result.
func (d *Deriver) Derive(namespace string, owner ir.Key) (ir.Key, uint8, error) {
	for salt := int(d.maxSalt); salt >= 0; salt-- {
		candidate := candidateFor(namespace, owner, uint8(salt))
		if !d.onCurve(candidate) {
			return candidate, uint8(salt), nil
		}
	}
	return ir.Key{}, 0, fmt.Errorf("derive %q for %s: %w", namespace, owner.Short(), ErrDerivationExhausted)
}

// Verify reports whether addr is the canonical derived address for
// (namespace, owner). Addresses produced with any other salt never verify.
func (d *Deriver) Verify(namespace string, owner, addr ir.Key) (bool, error) {
	canonical, _, err := d.Derive(namespace, owner)
	if err != nil {
		return false, err
	}
	return canonical == addr, nil
}

// CreateAddress computes the candidate for one specific salt, returning
// ErrOnCurve if it is unusable. It does not check canonicality; callers that
// accept its output instead of Derive's can be tricked into a second address
// for the same owner.
func (d *Deriver) CreateAddress(namespace string, owner ir.Key, salt uint8) (ir.Key, error) {
	candidate := candidateFor(namespace, owner, salt)
	if d.onCurve(candidate) {
		return ir.Key{}, ErrOnCurve
	}
	return candidate, nil
}

// candidateFor hashes the normalized namespace, owner and salt.
// Format: SHA256(NFC(namespace) + 0x00 + owner + salt + marker)
// The null byte prevents namespace/owner boundary ambiguity.
func candidateFor(namespace string, owner ir.Key, salt uint8) ir.Key {
	h := sha256.New()
	h.Write([]byte(norm.NFC.String(namespace)))
	h.Write([]byte{0x00})
	h.Write(owner[:])
	h.Write([]byte{salt})
	h.Write([]byte(addressMarker))

	var k ir.Key
	copy(k[:], h.Sum(nil))
	return k
}

// IsOnCurve reports whether k decodes as a valid Ed25519 point.
func IsOnCurve(k ir.Key) bool {
	_, err := new(edwards25519.Point).SetBytes(k[:])
	return err == nil
}
