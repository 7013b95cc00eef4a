package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/vaultguard/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testKey returns a key whose bytes are all b.
func testKey(b byte) ir.Key {
	var k ir.Key
	for i := range k {
		k[i] = b
	}
	return k
}

// createTestRecord creates an active vault record with a small buffer.
func createTestRecord(addr, owner ir.Key, balance uint64) ir.Record {
	return ir.Record{
		Address:   addr,
		Owner:     owner,
		Kind:      ir.KindVault,
		Balance:   balance,
		Lifecycle: ir.Active,
		Capacity:  4,
		Buffer:    make([]byte, 4),
	}
}

// createTestEntry creates a committed log entry with minimal required fields.
func createTestEntry(id string, seq int64, op ir.Op) ir.LogEntry {
	return ir.LogEntry{
		ID:          id,
		Seq:         seq,
		TraceID:     "trace-" + id,
		Op:          op,
		Message:     []byte{0xa0},
		Transaction: []byte{0xa0},
		Status:      ir.StatusCommitted,
	}
}
