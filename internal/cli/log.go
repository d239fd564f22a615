package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/journal"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	After int64
	Limit int
}

// LogEntry is one journaled dispatch.
type LogEntry struct {
	Seq          int64  `json:"seq"`
	DispatchID   string `json:"dispatch_id"`
	Event        string `json:"event"`
	Payload      string `json:"payload"`
	SnapshotHash string `json:"snapshot_hash"`
}

// LogResult lists journal entries.
type LogResult struct {
	Entries []LogEntry `json:"entries"`
}

// String renders one line per entry.
func (r LogResult) String() string {
	if len(r.Entries) == 0 {
		return "No dispatches recorded."
	}
	var b strings.Builder
	for i, e := range r.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d  %s  %s  %q  %s", e.Seq, e.DispatchID, e.Event, e.Payload, shortHash(e.SnapshotHash))
	}
	return b.String()
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List journaled dispatches",
		Long: `List committed dispatches recorded in the journal, oldest first.

Examples:
  statekeep log --journal ./statekeep.db
  statekeep log --journal ./statekeep.db --after 100 --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries (0 = all)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	j, err := openExistingJournal(opts.Journal)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.Entries(commandContext(cmd), opts.After, opts.Limit)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "failed to read journal", err)
	}

	result := LogResult{Entries: make([]LogEntry, 0, len(entries))}
	for _, e := range entries {
		result.Entries = append(result.Entries, LogEntry{
			Seq:          e.Seq,
			DispatchID:   e.DispatchID,
			Event:        e.Event,
			Payload:      e.Payload,
			SnapshotHash: e.SnapshotHash,
		})
	}
	return f.Success(result)
}

// openExistingJournal opens path, refusing to create a new journal.
func openExistingJournal(path string) (*journal.Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("no journal configured (use --journal or STATEKEEP_JOURNAL)")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}
	return journal.Open(path)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
