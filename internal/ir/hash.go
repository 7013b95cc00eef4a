package ir

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed hash.
type Digest [32]byte

// String returns the lowercase hex form of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// domainKey is a 32-byte BLAKE3 key. Domain separation ensures the same
// bytes hash differently in different contexts. The values are the ASCII
// domain name zero-padded to 32 bytes; the version suffix enables future
// algorithm migration.
type domainKey [32]byte

var (
	recordDomainKey      = newDomainKey("vaultguard/record/v1")
	instructionDomainKey = newDomainKey("vaultguard/instruction/v1")
)

func newDomainKey(name string) domainKey {
	var k domainKey
	if len(name) > len(k) {
		panic("ir: domain name longer than 32 bytes: " + name)
	}
	copy(k[:], name)
	return k
}

// keyedHash computes the BLAKE3 keyed hash of data under key.
func keyedHash(key domainKey, data []byte) Digest {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("ir: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// StateDigest computes the content digest of a record. Two records with the
// same digest are byte-for-byte identical in every field.
func StateDigest(r Record) (Digest, error) {
	data, err := EncodeRecord(r)
	if err != nil {
		return Digest{}, fmt.Errorf("StateDigest: %w", err)
	}
	return keyedHash(recordDomainKey, data), nil
}

// InstructionID computes the content-addressed ID for a processed
// instruction. seq is part of the identity so resubmitting the same
// instruction produces a distinct log entry; the processor provides no
// deduplication.
func InstructionID(ins Instruction, seq int64) (string, error) {
	msg, err := Message(ins)
	if err != nil {
		return "", fmt.Errorf("InstructionID: %w", err)
	}
	buf := make([]byte, 0, len(msg)+8)
	buf = append(buf, msg...)
	for shift := 56; shift >= 0; shift -= 8 {
		buf = append(buf, byte(seq>>uint(shift)))
	}
	return keyedHash(instructionDomainKey, buf).String(), nil
}

// MustStateDigest is like StateDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateDigest(r Record) Digest {
	d, err := StateDigest(r)
	if err != nil {
		panic(err)
	}
	return d
}
