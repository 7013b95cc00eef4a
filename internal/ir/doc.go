// Package ir provides the canonical types shared by every vaultguard package.
//
// This package contains type definitions, the deterministic CBOR codec and
// domain-separated digests. All other internal packages import ir; ir imports
// nothing internal. This keeps ir the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Keys (identities and addresses) are fixed 32-byte values, hex in text form
//   - The all-zero Key is the "absent" sentinel, never a valid identity
//   - Balances are uint64 and only change through checked arithmetic
//   - Records and instructions encode with CBOR Core Deterministic Encoding so
//     the same logical value always produces the same bytes and digest
package ir
