package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"sort"
	"sync"

	"github.com/roach88/vaultguard/internal/ir"
)

// keySeedDomain separates test key seeds from any other SHA-256 use.
const keySeedDomain = "vaultguard/test-key/v1:"

// Keypair returns the Ed25519 key pair deterministically derived from name.
// The same name always yields the same key, across runs and machines.
//
// Never use outside tests: the seed is public.
func Keypair(name string) (ed25519.PrivateKey, ir.Key) {
	seed := sha256.Sum256([]byte(keySeedDomain + name))
	priv := ed25519.NewKeyFromSeed(seed[:])

	var pub ir.Key
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return priv, pub
}

// Keyring caches named key pairs.
//
// Thread-safety: Keyring is safe for concurrent use via internal mutex.
type Keyring struct {
	mu   sync.Mutex
	keys map[string]ed25519.PrivateKey
}

// NewKeyring creates a keyring holding the given names.
func NewKeyring(names ...string) *Keyring {
	kr := &Keyring{keys: make(map[string]ed25519.PrivateKey)}
	for _, name := range names {
		kr.Private(name)
	}
	return kr
}

// Private returns the private key for name, deriving it on first use.
func (kr *Keyring) Private(name string) ed25519.PrivateKey {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if priv, ok := kr.keys[name]; ok {
		return priv
	}
	priv, _ := Keypair(name)
	kr.keys[name] = priv
	return priv
}

// Key returns the public identity for name.
func (kr *Keyring) Key(name string) ir.Key {
	var k ir.Key
	copy(k[:], kr.Private(name).Public().(ed25519.PublicKey))
	return k
}

// Names returns the names derived so far in sorted order.
func (kr *Keyring) Names() []string {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	names := make([]string, 0, len(kr.keys))
	for name := range kr.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameOf returns the name whose public key is k, if k was derived here.
func (kr *Keyring) NameOf(k ir.Key) (string, bool) {
	for _, name := range kr.Names() {
		if kr.Key(name) == k {
			return name, true
		}
	}
	return "", false
}
