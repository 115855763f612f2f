package testutil

import (
	"fmt"
	"sync"
)

// FixedUIDGenerator generates "<prefix>-1", "<prefix>-2", ... in order.
//
// The same scenario with a fresh FixedUIDGenerator produces byte-identical
// traces. It satisfies both program.UIDGenerator and
// engine.ChainIDGenerator.
//
// Thread-safety: FixedUIDGenerator is safe for concurrent use via internal mutex.
type FixedUIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedUIDGenerator creates a generator for prefix.
//
// If prefix is empty, ids are "test-1", "test-2", ...
func NewFixedUIDGenerator(prefix string) *FixedUIDGenerator {
	if prefix == "" {
		prefix = "test"
	}
	return &FixedUIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedUIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *FixedUIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
