package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/dispatch"
	"github.com/roach88/statekeep/internal/value"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
}

// DispatchResult is the outcome of a committed dispatch.
type DispatchResult struct {
	Seq        int64        `json:"seq"`
	DispatchID string       `json:"dispatch_id"`
	State      value.Object `json:"state"`
}

// String returns the state JSON, the text-mode output.
func (r DispatchResult) String() string {
	s, err := value.MarshalString(r.State)
	if err != nil {
		return fmt.Sprintf("<unencodable state: %v>", err)
	}
	return s
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <event> [payload]",
		Short: "Apply an event to every domain",
		Long: `Apply an event to every registered domain and persist the result.

The payload is passed to every transform as a raw string. Use "-" to read it
from stdin. On success the full state is printed as one JSON object; on
failure nothing in memory or on disk changes.

Exit codes:
  0 - Dispatch committed
  1 - Dispatch rejected (PARSE_ERROR, IO_ERROR)
  2 - Command error (unreadable state, bad catalog)

Examples:
  statekeep dispatch add_source '{"name":"north"}'
  statekeep dispatch add_reading 21.5 --data-dir ./state
  echo '{"name":"south"}' | statekeep dispatch add_source -`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, cmd, args)
		},
	}

	return cmd
}

func runDispatch(opts *DispatchOptions, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	f := formatter(opts.RootOptions, cmd)

	ev := dispatch.Event{Name: args[0]}
	if len(args) == 2 {
		payload, err := readPayload(args[1], cmd.InOrStdin())
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeCommand, "failed to read payload", err)
		}
		ev.Payload = payload
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return f.Fail(GetExitCode(err), ErrCodeCommand, "failed to open state", err)
	}
	defer s.Close()

	snap, err := s.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		code := string(dispatch.CodeOf(err))
		if code == "" {
			code = ErrCodeCommand
		}
		return f.Fail(ExitFailure, code, "dispatch failed", err)
	}

	return f.Success(DispatchResult{
		Seq:        snap.Seq,
		DispatchID: snap.DispatchID,
		State:      snap.Values,
	})
}

// readPayload returns arg, or stdin without its trailing newline when arg
// is "-".
func readPayload(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(string(b), "\n"), "\r"), nil
}
