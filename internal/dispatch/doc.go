// Package dispatch is the single entry point for changing domain state.
//
// A Dispatcher owns the in-memory store, the registry of domain transforms
// and the per-domain files. Dispatch applies one event to every domain and
// returns the resulting snapshot.
//
// ARCHITECTURE:
//
// Single Critical Section:
// The whole read-transform-persist-commit sequence of one dispatch runs
// under the store lock (state.Store.WithExclusiveAccess). Concurrent callers
// are serialized; none can read a value another caller is about to replace.
//
// Dispatch Flow:
//  1. Lock the store
//  2. For each domain, in sorted name order: look up its transform and
//     compute the next value. Any failure aborts before a single write.
//  3. Persist every domain's next value, changed or not
//  4. Stage all next values and commit them in one step
//  5. Stamp the commit with a seq from the logical clock and a dispatch id,
//     append it to the journal (if any) and return the snapshot
//
// Failure Handling:
// If persisting domain k fails, the files of domains already rewritten in
// this call are restored to their committed values, memory is left as it
// was, and the error is returned. A failed dispatch consumes no seq.
// Journal append failures are logged, not returned: the domain files are
// the durable state and they are already committed.
//
// Nothing in this package panics or exits on I/O or parse failures; every
// failure is returned as *Error.
package dispatch
