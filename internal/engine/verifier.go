package engine

import (
	"crypto/ed25519"
	"fmt"

	"github.com/roach88/vaultguard/internal/ir"
)

// signerSet is the verified-signer verdict for one transaction.
// It implements guard.Verifier.
type signerSet map[ir.Key]bool

// Verified implements guard.Verifier.
func (s signerSet) Verified(identity ir.Key) bool {
	return s[identity]
}

// verifySigners builds the signer set for tx. An identity enters the set only
// if its account entry is marked IsAuthorizer and a signature from it
// verifies over msg, the canonical instruction encoding.
func verifySigners(msg []byte, tx ir.Transaction) signerSet {
	set := signerSet{}
	for _, acct := range tx.Instruction.Accounts {
		if !acct.IsAuthorizer || set[acct.Key] {
			continue
		}
		pub := ed25519.PublicKey(acct.Key[:])
		for _, sig := range tx.Signatures {
			if sig.Signer != acct.Key || len(sig.Sig) != ed25519.SignatureSize {
				continue
			}
			if ed25519.Verify(pub, msg, sig.Sig) {
				set[acct.Key] = true
				break
			}
		}
	}
	return set
}

// Sign builds a transaction for ins carrying a signature from each key.
func Sign(ins ir.Instruction, keys ...ed25519.PrivateKey) (ir.Transaction, error) {
	msg, err := ir.Message(ins)
	if err != nil {
		return ir.Transaction{}, fmt.Errorf("sign: %w", err)
	}

	tx := ir.Transaction{Instruction: ins}
	for _, key := range keys {
		signer, err := ir.KeyFromBytes(key.Public().(ed25519.PublicKey))
		if err != nil {
			return ir.Transaction{}, fmt.Errorf("sign: %w", err)
		}
		tx.Signatures = append(tx.Signatures, ir.Signature{
			Signer: signer,
			Sig:    ed25519.Sign(key, msg),
		})
	}
	return tx, nil
}
