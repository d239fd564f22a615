// Package journal provides an append-only SQLite log of committed dispatches.
//
// The journal is optional. Domain files remain the durable state; the
// journal records how that state came to be so it can be audited and
// replayed:
//   - seq: logical clock value assigned at commit, strictly increasing
//   - dispatch_id: UUIDv7 correlation id
//   - event / payload: the dispatch input, exactly as received
//   - snapshot_hash / snapshot: the full resulting state
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// All queries order by seq ASC so reads are deterministic.
package journal
