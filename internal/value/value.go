package value

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the JSON value shapes a domain may hold.
// Only Null, String, Int, Number, Bool, Array and Object implement it.
type Value interface {
	value() // Sealed
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// String represents a JSON string.
type String string

func (String) value() {}

// Int represents an integral JSON number that fits in int64.
type Int int64

func (Int) value() {}

// Number represents any other JSON number literal (fractions, exponents,
// integers outside int64). The literal text is kept so re-encoding is exact.
type Number string

func (Number) value() {}

// Bool represents a JSON boolean.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Pair is a key-value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
// Example: NewObject(O("id", Int(0)), O("source", String("a")))
func O(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewObject creates an Object from key-value pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// NewArray creates an Array from values.
func NewArray(vals ...Value) Array {
	arr := make(Array, len(vals))
	copy(arr, vals)
	return arr
}

// With returns a new Object holding every entry of obj plus key set to v.
// obj itself is not modified; entry values are shared, not copied.
func (obj Object) With(key string, v Value) Object {
	next := make(Object, len(obj)+1)
	for k, existing := range obj {
		next[k] = existing
	}
	next[key] = v
	return next
}

// Append returns a new Array holding every element of arr followed by v.
// arr itself is not modified.
func (arr Array) Append(v Value) Array {
	next := make(Array, len(arr), len(arr)+1)
	copy(next, arr)
	return append(next, v)
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		return val.Clone()
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// Clone returns a deep copy of obj.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	next := make(Object, len(obj))
	for k, v := range obj {
		next[k] = Clone(v)
	}
	return next
}

// Clone returns a deep copy of arr.
func (arr Array) Clone() Array {
	if arr == nil {
		return nil
	}
	next := make(Array, len(arr))
	for i, v := range arr {
		next[i] = Clone(v)
	}
	return next
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's string comparison is UTF-8 based and orders some keys differently.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports whether a and b are structurally equal.
// Number literals compare by text, so 1.0 and 1.00 are different values.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, ok := bv[k]
			if !ok || !Equal(ae, be) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Kind returns a short name for the shape of v, used in diagnostics.
func Kind(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case String:
		return "string"
	case Int, Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}
