// Package catalog loads domain declarations from CUE.
//
// A catalog lets a deployment register extra domains without code changes.
// Each domain names one of the built-in transform kinds:
//
//	domains: {
//		notes: {
//			transform: "append"   // append {field: payload} on event
//			event:     "add_note"
//			field:     "note"
//			initial:   []
//		}
//		devices: {
//			transform: "keyed"    // parse payload, insert under sequential id
//			event:     "add_device"
//			field:     "device"
//		}
//		settings: {
//			transform: "identity" // never changes
//			initial:   {theme: "dark"}
//		}
//	}
//
// initial defaults to [] for append and {} for keyed and identity.
package catalog

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/statekeep/internal/registry"
	"github.com/roach88/statekeep/internal/value"
)

// Transform kinds accepted in a catalog.
const (
	KindIdentity = "identity"
	KindAppend   = "append"
	KindKeyed    = "keyed"
)

// CatalogError reports an invalid domain declaration.
type CatalogError struct {
	Domain  string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CatalogError) Error() string {
	where := e.Field
	if e.Domain != "" {
		where = fmt.Sprintf("domains.%s.%s", e.Domain, e.Field)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Load reads and compiles the catalog file at path.
func Load(path string) ([]registry.Domain, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(src, path)
}

// Parse compiles catalog source. filename is used in error positions.
func Parse(src []byte, filename string) ([]registry.Domain, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile converts a compiled CUE value holding a "domains" struct into
// registry entries, in declaration order.
func Compile(v cue.Value) ([]registry.Domain, error) {
	domainsVal := v.LookupPath(cue.ParsePath("domains"))
	if !domainsVal.Exists() {
		return nil, &CatalogError{Field: "domains", Message: "domains is required", Pos: v.Pos()}
	}
	if err := domainsVal.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := domainsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var domains []registry.Domain
	for iter.Next() {
		d, err := compileDomain(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}

	return domains, nil
}

// compileDomain builds one registry entry.
func compileDomain(name string, v cue.Value) (registry.Domain, error) {
	if err := registry.ValidateName(name); err != nil {
		return registry.Domain{}, &CatalogError{Domain: name, Field: "name", Message: err.Error(), Pos: v.Pos()}
	}

	kind := KindIdentity
	if kv := v.LookupPath(cue.ParsePath("transform")); kv.Exists() {
		s, err := kv.String()
		if err != nil {
			return registry.Domain{}, formatCUEError(err)
		}
		kind = s
	}

	var transform registry.Transform
	var initial value.Value
	switch kind {
	case KindIdentity:
		transform = registry.Identity{}
		initial = value.Object{}
	case KindAppend, KindKeyed:
		event, err := requiredString(name, v, "event")
		if err != nil {
			return registry.Domain{}, err
		}
		field, err := requiredString(name, v, "field")
		if err != nil {
			return registry.Domain{}, err
		}
		if kind == KindAppend {
			transform = registry.Append{Event: event, Field: field}
			initial = value.Array{}
		} else {
			transform = registry.KeyedInsert{Event: event, Field: field}
			initial = value.Object{}
		}
	default:
		return registry.Domain{}, &CatalogError{
			Domain:  name,
			Field:   "transform",
			Message: fmt.Sprintf("unknown transform %q (want %s, %s or %s)", kind, KindIdentity, KindAppend, KindKeyed),
			Pos:     v.Pos(),
		}
	}

	if iv := v.LookupPath(cue.ParsePath("initial")); iv.Exists() {
		parsed, err := initialValue(name, iv)
		if err != nil {
			return registry.Domain{}, err
		}
		if err := checkInitialShape(name, kind, parsed, iv.Pos()); err != nil {
			return registry.Domain{}, err
		}
		initial = parsed
	}

	return registry.Domain{Name: name, Initial: initial, Transform: transform}, nil
}

// requiredString returns the string field label of a domain declaration.
func requiredString(domain string, v cue.Value, label string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(label))
	if !fv.Exists() {
		return "", &CatalogError{Domain: domain, Field: label, Message: label + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CatalogError{Domain: domain, Field: label, Message: label + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

// initialValue converts a CUE value into a domain value via its JSON form.
func initialValue(domain string, v cue.Value) (value.Value, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	parsed, err := value.Parse(data)
	if err != nil {
		return nil, &CatalogError{Domain: domain, Field: "initial", Message: err.Error(), Pos: v.Pos()}
	}
	return parsed, nil
}

// checkInitialShape rejects initial values the transform could never extend.
func checkInitialShape(domain, kind string, v value.Value, pos token.Pos) error {
	var want string
	switch kind {
	case KindAppend:
		if _, ok := v.(value.Array); !ok {
			want = "array"
		}
	case KindKeyed:
		if _, ok := v.(value.Object); !ok {
			want = "object"
		}
	}
	if want == "" {
		return nil
	}
	return &CatalogError{
		Domain:  domain,
		Field:   "initial",
		Message: fmt.Sprintf("%s transform needs an %s, got %s", kind, want, value.Kind(v)),
		Pos:     pos,
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CatalogError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
