package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/statekeep/internal/journal"
	"github.com/roach88/statekeep/internal/registry"
	"github.com/roach88/statekeep/internal/value"
)

// Mismatch records a journaled dispatch whose replayed snapshot differs from
// the one recorded at the time.
type Mismatch struct {
	Seq        int64
	DispatchID string
	Event      string
	WantHash   string
	GotHash    string
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// Applied is the number of entries re-dispatched.
	Applied int

	// Mismatches lists entries whose snapshot hash differed on replay.
	// Empty means the registry reproduces the journal exactly.
	Mismatches []Mismatch

	// Final is the snapshot after the last entry.
	Final Snapshot
}

// Deterministic reports whether every replayed snapshot matched.
func (r *ReplayResult) Deterministic() bool {
	return len(r.Mismatches) == 0
}

// Replay rebuilds every domain from its registry default by re-applying
// entries in order, writing files through files as a live dispatch would.
//
// Existing domain files are overwritten with their defaults first. Entries
// must be in seq order, as returned by journal.Entries. Replay stops at the
// first dispatch error; snapshot hash differences are collected instead.
func Replay(ctx context.Context, entries []journal.Entry, reg *registry.Registry, files Persister) (*ReplayResult, error) {
	values := make(map[string]value.Value, reg.Len())
	for _, name := range reg.Names() {
		dom, _ := reg.Lookup(name)
		if err := files.Save(name, dom.Initial); err != nil {
			return nil, newIOError(name, "", err)
		}
		values[name] = dom.Initial
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.DispatchID
	}

	start := int64(0)
	if len(entries) > 0 {
		start = entries[0].Seq - 1
	}

	d, err := newDispatcher(reg, files, values,
		WithIDGenerator(NewFixedGenerator(ids...)),
		WithClock(NewClockAt(start)),
	)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{Mismatches: []Mismatch{}}
	for _, e := range entries {
		snap, err := d.Dispatch(ctx, Event{Name: e.Event, Payload: e.Payload})
		if err != nil {
			return result, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		result.Applied++

		got, err := value.SnapshotHash(snap.Values)
		if err != nil {
			return result, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if got != e.SnapshotHash {
			slog.Warn("replay mismatch", "seq", e.Seq, "dispatch_id", e.DispatchID, "event", e.Event)
			result.Mismatches = append(result.Mismatches, Mismatch{
				Seq:        e.Seq,
				DispatchID: e.DispatchID,
				Event:      e.Event,
				WantHash:   e.SnapshotHash,
				GotHash:    got,
			})
		}
	}

	result.Final = d.Snapshot()
	return result, nil
}
