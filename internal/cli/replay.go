package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/dispatch"
	"github.com/roach88/statekeep/internal/persist"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Into string
}

// ReplayMismatch is a journaled dispatch that replayed differently.
type ReplayMismatch struct {
	Seq      int64  `json:"seq"`
	Event    string `json:"event"`
	WantHash string `json:"want_hash"`
	GotHash  string `json:"got_hash"`
}

// ReplaySummary holds the replay result.
type ReplaySummary struct {
	Applied       int              `json:"applied"`
	FinalSeq      int64            `json:"final_seq"`
	Deterministic bool             `json:"deterministic"`
	Mismatches    []ReplayMismatch `json:"mismatches"`
	Into          string           `json:"into,omitempty"`
}

// String renders the summary as text.
func (r ReplaySummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replayed %d dispatch(es), final seq %d\n", r.Applied, r.FinalSeq)
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "✗ seq %d %s: snapshot %s, replayed %s\n", m.Seq, m.Event, shortHash(m.WantHash), shortHash(m.GotHash))
	}
	if r.Into != "" {
		fmt.Fprintf(&b, "State written to %s\n", r.Into)
	}
	if r.Deterministic {
		b.WriteString("✓ Replay matches the journal")
	} else {
		b.WriteString("✗ Determinism verification failed")
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [journal]",
		Short: "Rebuild state from the journal and verify determinism",
		Long: `Re-apply every journaled dispatch, starting from registry defaults, and
compare each resulting snapshot hash with the recorded one.

The journal argument overrides --journal. State is rebuilt in --into, or in
a temporary directory that is removed afterwards. The live data directory is
never touched.

Exit codes:
  0 - Every snapshot matched
  1 - Replay failed or a snapshot differed
  2 - Command error (journal not found, bad catalog)

Examples:
  statekeep replay ./statekeep.db
  statekeep replay --journal ./statekeep.db --into ./rebuilt`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Into, "into", "", "directory for rebuilt domain files (default: temporary)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	f := formatter(opts.RootOptions, cmd)

	path := opts.Journal
	if len(args) == 1 {
		path = args[0]
	}

	j, err := openExistingJournal(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.Entries(ctx, 0, 0)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "failed to read journal", err)
	}

	reg, err := buildRegistry(opts.Catalog)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "failed to build registry", err)
	}

	into := opts.Into
	if into == "" {
		tmp, err := os.MkdirTemp("", "statekeep-replay-*")
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeCommand, "failed to create replay dir", err)
		}
		defer os.RemoveAll(tmp)
		into = tmp
	}
	files := persist.NewDir(into)
	if err := files.Ensure(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "failed to create replay dir", err)
	}

	result, err := dispatch.Replay(ctx, entries, reg, files)
	if err != nil {
		code := string(dispatch.CodeOf(err))
		if code == "" {
			code = ErrCodeCommand
		}
		return f.Fail(ExitFailure, code, "replay failed", err)
	}

	summary := ReplaySummary{
		Applied:       result.Applied,
		FinalSeq:      result.Final.Seq,
		Deterministic: result.Deterministic(),
		Mismatches:    make([]ReplayMismatch, 0, len(result.Mismatches)),
		Into:          opts.Into,
	}
	for _, m := range result.Mismatches {
		summary.Mismatches = append(summary.Mismatches, ReplayMismatch{
			Seq:      m.Seq,
			Event:    m.Event,
			WantHash: m.WantHash,
			GotHash:  m.GotHash,
		})
	}

	if summary.Deterministic {
		return f.Success(summary)
	}

	if opts.Format == "json" {
		if err := f.Error(ErrCodeDeterminism, "determinism verification failed", summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), summary)
	}
	return NewExitError(ExitFailure, "determinism verification failed")
}
