package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on dispatches.dispatch_id
const currentSchemaVersion = 1

// ErrDuplicateSeq is returned by Append when seq is already journaled.
var ErrDuplicateSeq = errors.New("journal: seq already recorded")

// Entry is one committed dispatch.
type Entry struct {
	Seq          int64
	DispatchID   string
	Event        string
	Payload      string
	SnapshotHash string
	Snapshot     string // deterministic JSON of every domain's value
}

// Journal is the SQLite-backed dispatch log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at path.
// Applies required pragmas and migrations. Safe to call repeatedly.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append records a committed dispatch.
// Returns ErrDuplicateSeq (wrapped) if e.Seq was already written.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO dispatches
		(seq, dispatch_id, event, payload, snapshot_hash, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		e.DispatchID,
		e.Event,
		e.Payload,
		e.SnapshotHash,
		e.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("append dispatch: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append dispatch: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("append dispatch %d: %w", e.Seq, ErrDuplicateSeq)
	}
	return nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM dispatches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Entries returns up to limit entries with seq > afterSeq, ordered by seq.
// A limit <= 0 means no limit. Returns an empty slice (not nil) if none match.
func (j *Journal) Entries(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, dispatch_id, event, payload, snapshot_hash, snapshot
		FROM dispatches
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.DispatchID, &e.Event, &e.Payload, &e.SnapshotHash, &e.Snapshot); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}

	return entries, nil
}

// Latest returns the most recent entry. ok is false for an empty journal.
func (j *Journal) Latest(ctx context.Context) (e Entry, ok bool, err error) {
	err = j.db.QueryRowContext(ctx, `
		SELECT seq, dispatch_id, event, payload, snapshot_hash, snapshot
		FROM dispatches
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&e.Seq, &e.DispatchID, &e.Event, &e.Payload, &e.SnapshotHash, &e.Snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("latest dispatch: %w", err)
	}
	return e, true, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 enforces one row per dispatch id.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_dispatches_dispatch_id
		ON dispatches(dispatch_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (j *Journal) verifyPragma(name, expected string) error {
	var value string
	if err := j.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
