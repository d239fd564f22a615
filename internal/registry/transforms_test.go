package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/value"
)

func mustMarshal(t *testing.T, v value.Value) string {
	t.Helper()
	s, err := value.MarshalString(v)
	require.NoError(t, err)
	return s
}

func TestKeyedInsertFirstEntry(t *testing.T) {
	tr := SourcesDomain().Transform

	got, err := tr.Apply(value.Object{}, "add_source", `{"name":"a"}`)
	require.NoError(t, err)

	assert.Equal(t, `{"0":{"id":0,"source":{"name":"a"}}}`, mustMarshal(t, got))
}

func TestKeyedInsertSequentialIDs(t *testing.T) {
	tr := SourcesDomain().Transform

	first, err := tr.Apply(value.Object{}, "add_source", `{"name":"a"}`)
	require.NoError(t, err)
	entry0 := mustMarshal(t, first.(value.Object)["0"])

	second, err := tr.Apply(first, "add_source", `{"name":"b"}`)
	require.NoError(t, err)

	obj := second.(value.Object)
	require.Len(t, obj, 2)
	assert.Equal(t, `{"id":1,"source":{"name":"b"}}`, mustMarshal(t, obj["1"]))
	assert.Equal(t, entry0, mustMarshal(t, obj["0"]), "existing entry must be unchanged")
	assert.Len(t, first.(value.Object), 1, "input value must not be mutated")
}

func TestKeyedInsertContinuesFromLoadedCount(t *testing.T) {
	loaded := value.MustParse(`{"0":{"id":0,"source":"x"},"1":{"id":1,"source":"y"}}`)

	got, err := SourcesDomain().Transform.Apply(loaded, "add_source", `"z"`)
	require.NoError(t, err)

	obj := got.(value.Object)
	assert.Equal(t, `{"id":2,"source":"z"}`, mustMarshal(t, obj["2"]))
}

func TestKeyedInsertInvalidPayload(t *testing.T) {
	_, err := SourcesDomain().Transform.Apply(value.Object{}, "add_source", `{"name":`)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = SourcesDomain().Transform.Apply(value.Object{}, "add_source", "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestKeyedInsertRejectsInvalidUTF8(t *testing.T) {
	_, err := SourcesDomain().Transform.Apply(value.Object{}, "add_source", "\"a\xffb\"")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestKeyedInsertWrongShape(t *testing.T) {
	_, err := SourcesDomain().Transform.Apply(value.Array{}, "add_source", `{}`)
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestKeyedInsertIDCollision(t *testing.T) {
	// Hand-edited file: one entry stored under key "1"
	current := value.MustParse(`{"1":{"id":1,"source":"y"}}`)

	_, err := SourcesDomain().Transform.Apply(current, "add_source", `"z"`)
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestKeyedInsertUnknownEventReturnsSameValue(t *testing.T) {
	current := value.Object{"0": value.String("a")}

	got, err := SourcesDomain().Transform.Apply(current, "add_reading", "42")
	require.NoError(t, err)

	// Same map instance, not a copy
	got.(value.Object)["probe"] = value.Bool(true)
	assert.Contains(t, current, "probe")
}

func TestAppendReading(t *testing.T) {
	got, err := ReadingsDomain().Transform.Apply(value.Array{}, "add_reading", "42")
	require.NoError(t, err)

	assert.Equal(t, `[{"reading":"42"}]`, mustMarshal(t, got))
}

func TestAppendKeepsPayloadVerbatim(t *testing.T) {
	got, err := ReadingsDomain().Transform.Apply(value.Array{}, "add_reading", `{"not":"parsed"}`)
	require.NoError(t, err)

	arr := got.(value.Array)
	require.Len(t, arr, 1)
	assert.Equal(t, value.String(`{"not":"parsed"}`), arr[0].(value.Object)["reading"])
}

func TestAppendDoesNotMutateInput(t *testing.T) {
	current := make(value.Array, 1, 4)
	current[0] = value.NewObject(value.O("reading", value.String("1")))

	a, err := ReadingsDomain().Transform.Apply(current, "add_reading", "2")
	require.NoError(t, err)
	b, err := ReadingsDomain().Transform.Apply(current, "add_reading", "3")
	require.NoError(t, err)

	assert.Equal(t, `[{"reading":"1"},{"reading":"2"}]`, mustMarshal(t, a))
	assert.Equal(t, `[{"reading":"1"},{"reading":"3"}]`, mustMarshal(t, b))
	assert.Len(t, current, 1)
}

func TestAppendRejectsInvalidUTF8(t *testing.T) {
	current := value.Array{}

	got, err := ReadingsDomain().Transform.Apply(current, "add_reading", "a\xffb")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Nil(t, got)
	assert.Empty(t, current)
}

func TestAppendWrongShape(t *testing.T) {
	// append cannot extend an object
	_, err := ReadingsDomain().Transform.Apply(value.Object{}, "add_reading", "42")
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestAppendUnknownEventReturnsSameValue(t *testing.T) {
	current := make(value.Array, 1, 4)
	current[0] = value.String("x")

	got, err := ReadingsDomain().Transform.Apply(current, "noop_event", "")
	require.NoError(t, err)

	gotArr := got.(value.Array)
	gotArr[0] = value.String("probe")
	assert.Equal(t, value.String("probe"), current[0], "unmatched event must return the exact value")
}

func TestIdentity(t *testing.T) {
	current := value.Object{"k": value.Int(1)}

	for _, ev := range []string{"add_source", "add_reading", "anything"} {
		got, err := Identity{}.Apply(current, ev, "payload")
		require.NoError(t, err)
		assert.True(t, value.Equal(current, got))
	}
}
