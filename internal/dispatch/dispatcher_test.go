package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/registry"
	"github.com/roach88/statekeep/internal/value"
)

func TestOpen_InitializesMissingFiles(t *testing.T) {
	dir := t.TempDir()

	d, _ := openTestDispatcher(t, dir)

	assert.Equal(t, "{}", readFile(t, dir, "sources"))
	assert.Equal(t, "[]", readFile(t, dir, "readings"))
	assert.Equal(t, []string{"readings", "sources"}, d.Domains())

	snap := d.Snapshot()
	assert.Equal(t, int64(0), snap.Seq)
	assert.Empty(t, snap.DispatchID)
	assert.Len(t, snap.Values, 2)
}

func TestDispatch_AddFirstSource(t *testing.T) {
	dir := t.TempDir()
	d, _ := openTestDispatcher(t, dir)

	snap, err := d.Dispatch(context.Background(), Event{Name: "add_source", Payload: `{"name":"a"}`})
	require.NoError(t, err)

	sources, ok := snap.Get("sources")
	require.True(t, ok)
	assert.Equal(t, `{"0":{"id":0,"source":{"name":"a"}}}`, mustJSON(t, sources))
	assert.Equal(t, `{"0":{"id":0,"source":{"name":"a"}}}`, readFile(t, dir, "sources"))
}

func TestDispatch_SecondSourceLeavesFirstUntouched(t *testing.T) {
	dir := t.TempDir()
	d, _ := openTestDispatcher(t, dir)
	ctx := context.Background()

	first, err := d.Dispatch(ctx, Event{Name: "add_source", Payload: `{"name":"a"}`})
	require.NoError(t, err)
	entry0 := mustJSON(t, first.Values["sources"].(value.Object)["0"])

	second, err := d.Dispatch(ctx, Event{Name: "add_source", Payload: `{"name":"b"}`})
	require.NoError(t, err)

	sources := second.Values["sources"].(value.Object)
	assert.Equal(t, entry0, mustJSON(t, sources["0"]))
	assert.Equal(t, `{"id":1,"source":{"name":"b"}}`, mustJSON(t, sources["1"]))
}

func TestDispatch_AddReading(t *testing.T) {
	dir := t.TempDir()
	d, _ := openTestDispatcher(t, dir)

	out, err := d.DispatchJSON(context.Background(), "add_reading", "42")
	require.NoError(t, err)

	assert.Equal(t, `{"readings":[{"reading":"42"}],"sources":{}}`, out)
	assert.Equal(t, `[{"reading":"42"}]`, readFile(t, dir, "readings"))
}

func TestDispatch_UnknownEventRewritesEveryFile(t *testing.T) {
	dir := t.TempDir()
	d, files := openTestDispatcher(t, dir)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, Event{Name: "add_source", Payload: `{"name":"a"}`})
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, Event{Name: "add_reading", Payload: "7"})
	require.NoError(t, err)
	before := d.Snapshot()
	beforeSources := readFile(t, dir, "sources")
	beforeReadings := readFile(t, dir, "readings")
	files.resetCounts()

	after, err := d.Dispatch(ctx, Event{Name: "noop_event"})
	require.NoError(t, err)

	assert.True(t, value.Equal(before.Values, after.Values))
	assert.Equal(t, 1, files.saveCount("sources"))
	assert.Equal(t, 1, files.saveCount("readings"))
	assert.Equal(t, beforeSources, readFile(t, dir, "sources"))
	assert.Equal(t, beforeReadings, readFile(t, dir, "readings"))

	// Reopening reproduces the same map
	reopened, _ := openTestDispatcher(t, dir)
	assert.True(t, value.Equal(after.Values, reopened.Snapshot().Values))
}

func TestDispatch_IDsContinueAfterRestart(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sources", `{"0":{"id":0,"source":{"name":"a"}},"1":{"id":1,"source":{"name":"b"}}}`)

	d, _ := openTestDispatcher(t, dir)
	snap, err := d.Dispatch(context.Background(), Event{Name: "add_source", Payload: `{"name":"c"}`})
	require.NoError(t, err)

	sources := snap.Values["sources"].(value.Object)
	require.Len(t, sources, 3)
	assert.Equal(t, `{"id":2,"source":{"name":"c"}}`, mustJSON(t, sources["2"]))
}

func TestDispatch_ConcurrentCallsLoseNothing(t *testing.T) {
	dir := t.TempDir()
	d, _ := openTestDispatcher(t, dir)
	ctx := context.Background()

	const perKind = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*perKind)

	for i := 0; i < perKind; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := d.Dispatch(ctx, Event{Name: "add_source", Payload: fmt.Sprintf(`{"n":%d}`, i)})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := d.Dispatch(ctx, Event{Name: "add_reading", Payload: fmt.Sprintf("%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap := d.Snapshot()
	assert.Len(t, snap.Values["sources"].(value.Object), perKind)
	assert.Len(t, snap.Values["readings"].(value.Array), perKind)
	assert.Equal(t, int64(2*perKind), snap.Seq)

	// Files agree with memory
	reopened, _ := openTestDispatcher(t, dir)
	assert.True(t, value.Equal(snap.Values, reopened.Snapshot().Values))
}

func TestDispatch_SourceIDsUniqueUnderConcurrency(t *testing.T) {
	d, _ := openTestDispatcher(t, t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Dispatch(ctx, Event{Name: "add_source", Payload: `{}`})
		}()
	}
	wg.Wait()

	sources := d.Snapshot().Values["sources"].(value.Object)
	require.Len(t, sources, 20)
	for i := 0; i < 20; i++ {
		entry, ok := sources[fmt.Sprintf("%d", i)]
		require.True(t, ok, "missing id %d", i)
		assert.Equal(t, value.Int(i), entry.(value.Object)["id"])
	}
}

func TestDispatch_InvalidPayloadWritesNothing(t *testing.T) {
	dir := t.TempDir()
	d, files := openTestDispatcher(t, dir)
	before := d.Snapshot()

	_, err := d.Dispatch(context.Background(), Event{Name: "add_source", Payload: `{"name":`})
	require.Error(t, err)

	assert.True(t, IsParseError(err))
	assert.ErrorIs(t, err, registry.ErrInvalidPayload)
	assert.Equal(t, 0, files.saveCount("sources"))
	assert.Equal(t, 0, files.saveCount("readings"))
	assert.True(t, value.Equal(before.Values, d.Snapshot().Values))
	assert.Equal(t, before.Seq, d.Snapshot().Seq, "failed dispatch must not consume a seq")
}

func TestDispatch_InvalidUTF8ReadingRejected(t *testing.T) {
	dir := t.TempDir()
	d, files := openTestDispatcher(t, dir)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, Event{Name: "add_reading", Payload: "ok"})
	require.NoError(t, err)
	files.resetCounts()
	before := d.Snapshot()

	_, err = d.Dispatch(ctx, Event{Name: "add_reading", Payload: "a\xffb"})
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.ErrorIs(t, err, registry.ErrInvalidPayload)
	assert.Equal(t, 0, files.saveCount("readings"))
	assert.Equal(t, `[{"reading":"ok"}]`, readFile(t, dir, "readings"))

	reopened, _ := openTestDispatcher(t, dir)
	assert.True(t, value.Equal(before.Values, reopened.Snapshot().Values), "files must match memory")
}

func TestDispatch_IDFailureWritesNothing(t *testing.T) {
	d, files := openTestDispatcher(t, t.TempDir(), WithIDGenerator(NewFixedGenerator("d-1")))
	ctx := context.Background()

	_, err := d.Dispatch(ctx, Event{Name: "add_reading", Payload: "1"})
	require.NoError(t, err)
	files.resetCounts()
	before := d.Snapshot()

	_, err = d.Dispatch(ctx, Event{Name: "add_reading", Payload: "2"})
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, ErrIDsExhausted)
	assert.Equal(t, 0, files.saveCount("readings"))
	assert.Equal(t, 0, files.saveCount("sources"))
	assert.True(t, value.Equal(before.Values, d.Snapshot().Values))
	assert.Equal(t, before.Seq, d.Snapshot().Seq)
}

func TestSnapshot_SeqMatchesValuesUnderConcurrency(t *testing.T) {
	d, _ := openTestDispatcher(t, t.TempDir())
	ctx := context.Background()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, _ = d.Dispatch(ctx, Event{Name: "add_reading", Payload: "r"})
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		snap := d.Snapshot()
		readings := snap.Values["readings"].(value.Array)
		require.Equal(t, int(snap.Seq), len(readings), "seq %d paired with %d readings", snap.Seq, len(readings))

		select {
		case <-done:
			assert.Equal(t, int64(writers*perWriter), d.Snapshot().Seq)
			return
		default:
		}
	}
}

func TestSnapshot_CallerOwnsValues(t *testing.T) {
	dir := t.TempDir()
	d, _ := openTestDispatcher(t, dir)
	ctx := context.Background()

	dispatched, err := d.Dispatch(ctx, Event{Name: "add_source", Payload: `{"name":"a"}`})
	require.NoError(t, err)

	entry := dispatched.Values["sources"].(value.Object)["0"].(value.Object)
	entry["id"] = value.Int(99)

	snap := d.Snapshot()
	snap.Values["sources"].(value.Object)["1"] = value.Null{}
	snap.Values["readings"] = value.Null{}

	after := d.Snapshot()
	assert.Equal(t, `{"0":{"id":0,"source":{"name":"a"}}}`, mustJSON(t, after.Values["sources"]))
	assert.Equal(t, `[]`, mustJSON(t, after.Values["readings"]))
	assert.Equal(t, mustJSON(t, after.Values["sources"]), readFile(t, dir, "sources"))
}

func TestDispatch_PersistFailureRestoresEarlierFiles(t *testing.T) {
	dir := t.TempDir()
	d, files := openTestDispatcher(t, dir)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, Event{Name: "add_reading", Payload: "1"})
	require.NoError(t, err)
	before := d.Snapshot()

	// "readings" sorts before "sources": readings is written, sources fails
	files.failSaves("sources", errDiskFull)

	_, err = d.Dispatch(ctx, Event{Name: "add_reading", Payload: "2"})
	require.Error(t, err)

	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, errDiskFull)

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "sources", de.Domain)
	assert.Equal(t, "add_reading", de.Event)

	assert.True(t, value.Equal(before.Values, d.Snapshot().Values), "memory must be unchanged")
	assert.Equal(t, `[{"reading":"1"}]`, readFile(t, dir, "readings"), "written file must be restored")

	// Recovery once the fault clears
	files.failSaves("sources", nil)
	snap, err := d.Dispatch(ctx, Event{Name: "add_reading", Payload: "3"})
	require.NoError(t, err)
	assert.Equal(t, `[{"reading":"1"},{"reading":"3"}]`, mustJSON(t, snap.Values["readings"]))
	assert.Equal(t, before.Seq+1, snap.Seq)
}

func TestDispatch_CancelledContext(t *testing.T) {
	d, files := openTestDispatcher(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, Event{Name: "add_reading", Payload: "1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, files.saveCount("readings"))
}

func TestDispatch_SeqAndIDs(t *testing.T) {
	gen := NewFixedGenerator("d-1", "d-2")
	d, _ := openTestDispatcher(t, t.TempDir(), WithIDGenerator(gen))
	ctx := context.Background()

	s1, err := d.Dispatch(ctx, Event{Name: "noop"})
	require.NoError(t, err)
	s2, err := d.Dispatch(ctx, Event{Name: "noop"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), s1.Seq)
	assert.Equal(t, "d-1", s1.DispatchID)
	assert.Equal(t, int64(2), s2.Seq)
	assert.Equal(t, "d-2", s2.DispatchID)
}

func TestDispatch_CustomDomain(t *testing.T) {
	reg, err := registry.Default().With(registry.Domain{
		Name:    "counter",
		Initial: value.Int(0),
		Transform: registry.TransformFunc(func(cur value.Value, event, _ string) (value.Value, error) {
			if event != "tick" {
				return cur, nil
			}
			return cur.(value.Int) + 1, nil
		}),
	})
	require.NoError(t, err)

	dir := t.TempDir()
	d, err := Open(context.Background(), reg, newRecordingFiles(dir))
	require.NoError(t, err)

	out, err := d.DispatchJSON(context.Background(), "tick", "")
	require.NoError(t, err)
	assert.Equal(t, `{"counter":1,"readings":[],"sources":{}}`, out)
	assert.Equal(t, "1", readFile(t, dir, "counter"))
}

func TestOpen_CorruptFileIsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sources", `{"0":`)

	_, err := Open(context.Background(), registry.Default(), newRecordingFiles(dir))
	require.Error(t, err)

	assert.True(t, IsParseError(err))
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "sources", de.Domain)
}

func TestOpen_LoadFailureIsIOError(t *testing.T) {
	files := newRecordingFiles(t.TempDir())
	files.failLoad["readings"] = errDiskFull

	_, err := Open(context.Background(), registry.Default(), files)
	require.Error(t, err)

	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, errDiskFull)
}

func TestOpen_WrongShapeFailsOnFirstMatchingEvent(t *testing.T) {
	dir := t.TempDir()
	// A readings file written as an object by an older version
	writeFile(t, dir, "readings", `{}`)

	d, _ := openTestDispatcher(t, dir)

	_, err := d.Dispatch(context.Background(), Event{Name: "noop"})
	require.NoError(t, err, "shape only matters to the matching event")

	_, err = d.Dispatch(context.Background(), Event{Name: "add_reading", Payload: "1"})
	assert.True(t, IsParseError(err))
	assert.ErrorIs(t, err, registry.ErrUnexpectedShape)
}

func TestNewDispatcher_MissingDomain(t *testing.T) {
	files := newRecordingFiles(t.TempDir())

	_, err := newDispatcher(registry.Default(), files, map[string]value.Value{
		"sources":  value.Object{},
		"readings": value.Array{},
		"orphan":   value.Null{},
	})
	assert.True(t, IsMissingDomain(err))

	_, err = newDispatcher(registry.Default(), files, map[string]value.Value{
		"sources": value.Object{},
	})
	assert.True(t, IsMissingDomain(err))
}

func TestErrorFormatting(t *testing.T) {
	err := newIOError("sources", "add_source", errDiskFull)
	assert.Equal(t, "IO_ERROR: disk full (domain=sources, event=add_source)", err.Error())

	err = newParseError("sources", "", errDiskFull)
	assert.Equal(t, "PARSE_ERROR: disk full (domain=sources)", err.Error())

	assert.Equal(t, ErrorCode(""), CodeOf(errDiskFull))
	assert.Equal(t, ErrCodeIO, CodeOf(fmt.Errorf("wrapped: %w", newIOError("x", "", errDiskFull))))
}
