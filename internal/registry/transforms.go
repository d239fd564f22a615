package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/roach88/statekeep/internal/value"
)

// Errors returned (wrapped) by the built-in transforms.
var (
	// ErrInvalidPayload indicates the payload could not be parsed as the
	// structured input the transform requires.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnexpectedShape indicates the current value is not the shape the
	// transform operates on (e.g. an array where an object is expected).
	ErrUnexpectedShape = errors.New("unexpected value shape")
)

// KeyedInsert parses the payload of Event as JSON and inserts it into an
// object-shaped value under a sequential id.
//
// The id is the current number of entries, so a value loaded from disk with
// entries "0" and "1" receives "2" next. The inserted record is
// {"id": <id>, <Field>: <parsed payload>}, keyed by the decimal id.
type KeyedInsert struct {
	Event string
	Field string
}

// Apply implements Transform.
func (t KeyedInsert) Apply(current value.Value, event, payload string) (value.Value, error) {
	if event != t.Event {
		slog.Debug("unknown event", "transform", "keyed", "event", event)
		return current, nil
	}

	obj, ok := current.(value.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an object, got %s", ErrUnexpectedShape, t.Event, value.Kind(current))
	}

	if !utf8.ValidString(payload) {
		return nil, fmt.Errorf("%w: %s: payload is not valid UTF-8", ErrInvalidPayload, t.Event)
	}

	parsed, err := value.ParseString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t.Event, err)
	}

	id := len(obj)
	key := strconv.Itoa(id)
	if _, taken := obj[key]; taken {
		// Keys were not assigned by this transform (hand-edited file).
		return nil, fmt.Errorf("%w: %s: id %q already present", ErrUnexpectedShape, t.Event, key)
	}

	record := value.NewObject(
		value.O("id", value.Int(id)),
		value.O(t.Field, parsed),
	)
	return obj.With(key, record), nil
}

// Append appends {<Field>: <payload>} to an array-shaped value on Event.
// The payload is stored verbatim as a string; it is not parsed, but it must
// be valid UTF-8 so the stored file decodes back to the same string.
type Append struct {
	Event string
	Field string
}

// Apply implements Transform.
func (t Append) Apply(current value.Value, event, payload string) (value.Value, error) {
	if event != t.Event {
		slog.Debug("unknown event", "transform", "append", "event", event)
		return current, nil
	}

	arr, ok := current.(value.Array)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an array, got %s", ErrUnexpectedShape, t.Event, value.Kind(current))
	}

	if !utf8.ValidString(payload) {
		return nil, fmt.Errorf("%w: %s: payload is not valid UTF-8", ErrInvalidPayload, t.Event)
	}

	return arr.Append(value.NewObject(value.O(t.Field, value.String(payload)))), nil
}

// Identity returns the current value for every event. It is the transform
// for domains that have no mutation rules yet.
type Identity struct{}

// Apply implements Transform.
func (Identity) Apply(current value.Value, event, payload string) (value.Value, error) {
	slog.Debug("identity transform", "event", event, "payload", payload)
	return current, nil
}

// SourcesDomain returns the "sources" domain: an object of sources keyed by
// insertion order, extended by "add_source".
func SourcesDomain() Domain {
	return Domain{
		Name:      "sources",
		Initial:   value.Object{},
		Transform: KeyedInsert{Event: "add_source", Field: "source"},
	}
}

// ReadingsDomain returns the "readings" domain: a list of raw readings,
// extended by "add_reading".
func ReadingsDomain() Domain {
	return Domain{
		Name:      "readings",
		Initial:   value.Array{},
		Transform: Append{Event: "add_reading", Field: "reading"},
	}
}
