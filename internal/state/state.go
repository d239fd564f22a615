// Package state holds the in-memory value of every domain.
//
// The store owns a map from domain name to value. The only way to read and
// change it together is WithExclusiveAccess, which runs a whole
// read-transform-persist-commit sequence inside one critical section. There
// is no "clone, release, mutate, replace" API: two callers that both read the
// same prior value and commit independently would lose one of the updates.
package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/statekeep/internal/value"
)

// ErrUnknownDomain is returned when a transaction stages a value for a name
// that is not in the store. The key set never changes after New.
var ErrUnknownDomain = errors.New("unknown domain")

// Store is the mutex-guarded domain map.
//
// INVARIANTS:
//   - the key set equals the key set passed to New, never more or fewer
//   - values are replaced wholesale on commit, never mutated in place
type Store struct {
	mu     sync.Mutex
	values map[string]value.Value
}

// New creates a store holding a copy of initial.
func New(initial map[string]value.Value) *Store {
	return &Store{values: maps.Clone(initial)}
}

// Txn is the view handed to a WithExclusiveAccess callback. It is only
// valid for the duration of the callback.
type Txn struct {
	current map[string]value.Value
	staged  map[string]value.Value
}

// Names returns the domain names in sorted order.
func (t *Txn) Names() []string {
	names := slices.Collect(maps.Keys(t.current))
	slices.Sort(names)
	return names
}

// Get returns the committed value of name, ignoring anything staged.
func (t *Txn) Get(name string) (value.Value, bool) {
	v, ok := t.current[name]
	return v, ok
}

// Stage records v as the next value of name. Staged values become visible
// only when the callback returns nil.
func (t *Txn) Stage(name string, v value.Value) error {
	if _, ok := t.current[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
	if t.staged == nil {
		t.staged = make(map[string]value.Value, len(t.current))
	}
	t.staged[name] = v
	return nil
}

// WithExclusiveAccess runs fn while holding the store lock.
//
// If fn returns nil, the working copy (committed values overlaid with
// everything fn staged) replaces the store contents in one step. If fn
// returns an error, nothing staged is applied and the error is returned.
func (s *Store) WithExclusiveAccess(fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &Txn{current: s.values}
	if err := fn(txn); err != nil {
		return err
	}
	if len(txn.staged) == 0 {
		return nil
	}

	working := maps.Clone(s.values)
	maps.Copy(working, txn.staged)
	s.values = working
	return nil
}

// Snapshot returns a deep copy of the current domain map. Changing it never
// affects the store.
func (s *Store) Snapshot() map[string]value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneValues(s.values)
}

// Values returns a deep copy of the committed domain map.
func (t *Txn) Values() map[string]value.Value {
	return cloneValues(t.current)
}

func cloneValues(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for name, v := range m {
		out[name] = value.Clone(v)
	}
	return out
}

// Len returns the number of domains.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
