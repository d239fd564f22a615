package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/statekeep/internal/journal"
	"github.com/roach88/statekeep/internal/registry"
	"github.com/roach88/statekeep/internal/state"
	"github.com/roach88/statekeep/internal/value"
)

// Persister reads and writes domain files. Implemented by *persist.Dir.
type Persister interface {
	Load(domain string, def value.Value) ([]byte, error)
	Save(domain string, v value.Value) error
}

// Journal records committed dispatches. Implemented by *journal.Journal.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
	LastSeq(ctx context.Context) (int64, error)
}

// Event is one dispatch input. An absent payload is the empty string.
type Event struct {
	Name    string
	Payload string
}

// Snapshot is the full domain map after a dispatch.
type Snapshot struct {
	// Seq is the logical clock value of the last committed dispatch.
	Seq int64

	// DispatchID identifies the dispatch that produced this snapshot.
	// Empty for snapshots taken without dispatching.
	DispatchID string

	// Values maps every domain to its value.
	Values value.Object
}

// Get returns the value of domain.
func (s Snapshot) Get(domain string) (value.Value, bool) {
	v, ok := s.Values[domain]
	return v, ok
}

// JSON returns the deterministic JSON encoding of the domain map.
func (s Snapshot) JSON() ([]byte, error) {
	return value.Marshal(s.Values)
}

// MarshalJSON implements json.Marshaler; only the domain map is encoded.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return s.JSON()
}

// Dispatcher applies events to every registered domain.
//
// Thread-safety: all methods are safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	files    Persister
	store    *state.Store
	journal  Journal
	ids      IDGenerator
	clock    *Clock
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithJournal records every committed dispatch in j. Unless WithClock is
// also given, seq numbering resumes from j's last entry.
func WithJournal(j Journal) Option {
	return func(d *Dispatcher) {
		d.journal = j
	}
}

// WithIDGenerator sets the dispatch id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Dispatcher) {
		d.ids = g
	}
}

// WithClock sets the logical clock.
func WithClock(c *Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// Open loads every registered domain from files and returns a ready
// Dispatcher.
//
// A domain whose file does not exist is initialized with its registry
// default. Any load or parse failure aborts Open: there is no valid state
// to start from.
func Open(ctx context.Context, reg *registry.Registry, files Persister, opts ...Option) (*Dispatcher, error) {
	values := make(map[string]value.Value, reg.Len())

	for _, name := range reg.Names() {
		dom, _ := reg.Lookup(name)

		raw, err := files.Load(name, dom.Initial)
		if err != nil {
			return nil, newIOError(name, "", err)
		}

		v, err := value.Parse(raw)
		if err != nil {
			return nil, newParseError(name, "", fmt.Errorf("stored content: %w", err))
		}
		values[name] = v
	}

	d, err := newDispatcher(reg, files, values, opts...)
	if err != nil {
		return nil, err
	}

	if d.clock == nil {
		d.clock = NewClock()
		if d.journal != nil {
			last, err := d.journal.LastSeq(ctx)
			if err != nil {
				return nil, fmt.Errorf("open dispatcher: %w", err)
			}
			d.clock = NewClockAt(last)
		}
	}

	slog.Info("state loaded", "domains", reg.Len(), "seq", d.clock.Current())
	return d, nil
}

// newDispatcher builds a Dispatcher over already-loaded values.
// The key set of values must equal the registry's.
func newDispatcher(reg *registry.Registry, files Persister, values map[string]value.Value, opts ...Option) (*Dispatcher, error) {
	for name := range values {
		if _, ok := reg.Lookup(name); !ok {
			return nil, newMissingDomainError(name, "")
		}
	}
	for _, name := range reg.Names() {
		if _, ok := values[name]; !ok {
			return nil, &Error{Code: ErrCodeMissingDomain, Domain: name, Err: errors.New("registered domain was not loaded")}
		}
	}

	d := &Dispatcher{
		registry: reg,
		files:    files,
		store:    state.New(values),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch applies ev to every domain, persists every result and returns
// the new snapshot. The snapshot's values are a copy owned by the caller.
//
// On error nothing is committed: memory is unchanged and files rewritten
// earlier in the call are restored. The context is checked once on entry.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	err := d.store.WithExclusiveAccess(func(txn *state.Txn) error {
		names := txn.Names()

		next, err := d.transformAll(txn, names, ev)
		if err != nil {
			return err
		}

		id, err := d.ids.Generate()
		if err != nil {
			return newIOError("", ev.Name, fmt.Errorf("generate dispatch id: %w", err))
		}

		if err := d.persistAll(txn, names, next, ev.Name); err != nil {
			return err
		}

		for _, name := range names {
			if err := txn.Stage(name, next[name]); err != nil {
				return newMissingDomainError(name, ev.Name)
			}
		}

		snap = Snapshot{
			Seq:        d.clock.Next(),
			DispatchID: id,
			Values:     next.Clone(),
		}
		d.record(ctx, ev, snap)
		return nil
	})
	if err != nil {
		slog.Warn("dispatch failed", "event", ev.Name, "error", err)
		return Snapshot{}, err
	}

	return snap, nil
}

// DispatchJSON is Dispatch for hosts that exchange plain strings: it returns
// the JSON object mapping every domain to its new value.
func (d *Dispatcher) DispatchJSON(ctx context.Context, event, payload string) (string, error) {
	snap, err := d.Dispatch(ctx, Event{Name: event, Payload: payload})
	if err != nil {
		return "", err
	}

	b, err := snap.JSON()
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// Snapshot returns the current state without dispatching. Seq and Values
// are read under the same lock, so Seq always names the dispatch that
// produced Values. Values is a copy owned by the caller.
func (d *Dispatcher) Snapshot() Snapshot {
	var snap Snapshot
	_ = d.store.WithExclusiveAccess(func(txn *state.Txn) error {
		snap = Snapshot{
			Seq:    d.clock.Current(),
			Values: value.Object(txn.Values()),
		}
		return nil
	})
	return snap
}

// Domains returns the registered domain names in sorted order.
func (d *Dispatcher) Domains() []string {
	return d.registry.Names()
}

// transformAll computes every domain's next value without side effects.
func (d *Dispatcher) transformAll(txn *state.Txn, names []string, ev Event) (value.Object, error) {
	next := make(value.Object, len(names))

	for _, name := range names {
		dom, ok := d.registry.Lookup(name)
		if !ok {
			return nil, newMissingDomainError(name, ev.Name)
		}

		current, _ := txn.Get(name)
		v, err := dom.Transform.Apply(current, ev.Name, ev.Payload)
		if err != nil {
			return nil, newParseError(name, ev.Name, err)
		}
		if v == nil {
			return nil, newParseError(name, ev.Name, errors.New("transform returned no value"))
		}
		next[name] = v
	}

	return next, nil
}

// persistAll writes every next value. If a write fails, files already
// written in this call are restored to their committed values.
func (d *Dispatcher) persistAll(txn *state.Txn, names []string, next value.Object, event string) error {
	for i, name := range names {
		if err := d.files.Save(name, next[name]); err != nil {
			d.restore(txn, names[:i], event)
			return newIOError(name, event, err)
		}
	}
	return nil
}

// restore rewrites the committed value of each named domain.
// Best effort: a failure here leaves that file ahead of memory until the
// next successful dispatch rewrites it.
func (d *Dispatcher) restore(txn *state.Txn, names []string, event string) {
	for _, name := range names {
		committed, _ := txn.Get(name)
		if err := d.files.Save(name, committed); err != nil {
			slog.Error("restore failed", "domain", name, "event", event, "error", err)
		}
	}
}

// record logs the commit and appends it to the journal, if configured.
func (d *Dispatcher) record(ctx context.Context, ev Event, snap Snapshot) {
	slog.Debug("dispatch committed", "seq", snap.Seq, "dispatch_id", snap.DispatchID, "event", ev.Name)

	if d.journal == nil {
		return
	}

	data, err := snap.JSON()
	if err != nil {
		slog.Error("journal append skipped", "seq", snap.Seq, "error", err)
		return
	}
	hash, err := value.SnapshotHash(snap.Values)
	if err != nil {
		slog.Error("journal append skipped", "seq", snap.Seq, "error", err)
		return
	}

	entry := journal.Entry{
		Seq:          snap.Seq,
		DispatchID:   snap.DispatchID,
		Event:        ev.Name,
		Payload:      ev.Payload,
		SnapshotHash: hash,
		Snapshot:     string(data),
	}
	if err := d.journal.Append(ctx, entry); err != nil {
		slog.Error("journal append failed", "seq", snap.Seq, "dispatch_id", snap.DispatchID, "error", err)
	}
}
