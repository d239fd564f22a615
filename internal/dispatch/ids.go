package dispatch

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrIDsExhausted is returned by FixedGenerator once every id was used.
var ErrIDsExhausted = errors.New("all ids exhausted")

// IDGenerator produces dispatch correlation ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() (string, error)
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// It fails only if the system random source does.
func (g UUIDv7Generator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("d-1", "d-2")
//	gen.Generate() // "d-1", nil
//	gen.Generate() // "d-2", nil
//	gen.Generate() // "", ErrIDsExhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id, or ErrIDsExhausted once all
// have been consumed.
func (g *FixedGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		return "", ErrIDsExhausted
	}
	id := g.ids[g.idx]
	g.idx++
	return id, nil
}
