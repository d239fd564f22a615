// Package registry holds the fixed set of state domains and the transform
// that owns each one.
//
// A domain pairs a name with an initial value and a Transform. The registry
// is built once, before the store is loaded, and never grows or shrinks
// afterwards. Adding a domain means registering another Domain value; there
// is no central switch to edit.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/statekeep/internal/value"
)

// Transform computes a domain's next value from its current value and an
// event. Implementations must be pure: they must not mutate current, and
// must not depend on anything other than their three inputs. Logging is the
// only permitted side effect.
//
// An event a transform does not recognize is not an error: the transform
// returns current unchanged.
type Transform interface {
	Apply(current value.Value, event, payload string) (value.Value, error)
}

// TransformFunc adapts an ordinary function to the Transform interface.
type TransformFunc func(current value.Value, event, payload string) (value.Value, error)

// Apply calls f(current, event, payload).
func (f TransformFunc) Apply(current value.Value, event, payload string) (value.Value, error) {
	return f(current, event, payload)
}

// Domain is one registry entry.
type Domain struct {
	Name      string
	Initial   value.Value
	Transform Transform
}

// Registry maps domain names to their entries.
//
// INVARIANTS:
//   - names is sorted and holds exactly the keys of domains
//   - the set of domains never changes after New returns
type Registry struct {
	domains map[string]Domain
	names   []string
}

// Sentinel errors returned (wrapped) by New and ValidateName.
var (
	ErrInvalidName     = errors.New("invalid domain name")
	ErrDuplicateDomain = errors.New("duplicate domain")
	ErrIncomplete      = errors.New("incomplete domain")
)

// New builds a registry from the given domains.
// Fails if any name is invalid or repeated, or an entry lacks an initial
// value or transform.
func New(domains ...Domain) (*Registry, error) {
	r := &Registry{
		domains: make(map[string]Domain, len(domains)),
		names:   make([]string, 0, len(domains)),
	}

	for _, d := range domains {
		if err := ValidateName(d.Name); err != nil {
			return nil, err
		}
		if d.Initial == nil || d.Transform == nil {
			return nil, fmt.Errorf("%w: %q needs an initial value and a transform", ErrIncomplete, d.Name)
		}
		if _, exists := r.domains[d.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDomain, d.Name)
		}
		r.domains[d.Name] = d
		r.names = append(r.names, d.Name)
	}

	slices.Sort(r.names)
	return r, nil
}

// Default returns the stock registry: "sources" keyed by insertion order and
// "readings" as an append-only list.
// The entries are static and skip New's checks.
func Default() *Registry {
	sources, readings := SourcesDomain(), ReadingsDomain()
	return &Registry{
		domains: map[string]Domain{
			sources.Name:  sources,
			readings.Name: readings,
		},
		names: []string{readings.Name, sources.Name},
	}
}

// With returns a new registry holding r's domains plus extra.
func (r *Registry) With(extra ...Domain) (*Registry, error) {
	all := make([]Domain, 0, len(r.names)+len(extra))
	for _, name := range r.names {
		all = append(all, r.domains[name])
	}
	all = append(all, extra...)
	return New(all...)
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Domain, bool) {
	d, ok := r.domains[name]
	return d, ok
}

// Names returns the registered domain names in sorted order.
// The returned slice is a copy.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Len returns the number of registered domains.
func (r *Registry) Len() int {
	return len(r.names)
}

// ValidateName checks that name can serve as a domain identifier.
// Names become file names, so they must be non-empty, NFC-normalized, and
// free of path separators, control characters and leading dots.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case !norm.NFC.IsNormalString(name):
		return fmt.Errorf("%w: %q is not NFC-normalized", ErrInvalidName, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidName, name)
		}
	}
	return nil
}
