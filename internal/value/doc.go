// Package value provides the structured value model held by every domain.
//
// A domain value is free-form JSON. It is represented by the sealed Value
// interface so transforms can switch on concrete shapes (Object, Array, ...)
// without reflection. The package imports nothing internal; every other
// package builds on it.
//
// Key design constraints:
//   - Strings are stored verbatim (no normalization) so payloads round-trip
//     byte for byte
//   - Integers are int64; other number literals are kept as their original
//     text (Number) rather than float64
//   - Encoding is deterministic: object keys are emitted in RFC 8785 order
//     and HTML characters are not escaped
//   - Values are treated as immutable once built; use Object.With and
//     Array.Append to derive new ones
package value
