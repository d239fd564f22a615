package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable dispatch ids: prefix-0001, prefix-0002, ...
//
// Unlike dispatch.FixedGenerator it never runs out, and it can be reset so
// the same scenario produces byte-identical snapshots on every run.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "test-dispatch".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test-dispatch"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements dispatch.IDGenerator.
func (g *SequentialIDs) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n), nil
}

// Issued returns how many ids have been generated since creation or Reset.
func (g *SequentialIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
