package testutil

import (
	"fmt"
	"sync"
)

// SequentialTraces generates trace IDs "<prefix>-0001", "<prefix>-0002", ...
//
// Reset restarts numbering so the same scenario run twice produces identical
// traces.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialTraces struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTraces creates a generator. An empty prefix becomes "trace".
func NewSequentialTraces(prefix string) *SequentialTraces {
	if prefix == "" {
		prefix = "trace"
	}
	return &SequentialTraces{prefix: prefix}
}

// Generate returns the next trace ID.
//
// Implements engine.TraceGenerator.
func (g *SequentialTraces) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialTraces) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
