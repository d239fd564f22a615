package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/value"
)

// ShowResult is the current state, or one domain of it.
type ShowResult struct {
	Seq    int64       `json:"seq"`
	Domain string      `json:"domain,omitempty"`
	Value  value.Value `json:"value"`
}

// String returns the value JSON, the text-mode output.
func (r ShowResult) String() string {
	s, err := value.MarshalString(r.Value)
	if err != nil {
		return fmt.Sprintf("<unencodable value: %v>", err)
	}
	return s
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [domain]",
		Short: "Print the current state",
		Long: `Print the current state without dispatching.

Domain files that do not exist yet are created with their defaults, exactly
as the first dispatch would.

Examples:
  statekeep show
  statekeep show readings --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, cmd, args)
		},
	}

	return cmd
}

func runShow(opts *RootOptions, cmd *cobra.Command, args []string) error {
	f := formatter(opts, cmd)

	s, err := openSession(commandContext(cmd), opts)
	if err != nil {
		return f.Fail(GetExitCode(err), ErrCodeCommand, "failed to open state", err)
	}
	defer s.Close()

	snap := s.dispatcher.Snapshot()
	if len(args) == 0 {
		return f.Success(ShowResult{Seq: snap.Seq, Value: snap.Values})
	}

	v, ok := snap.Get(args[0])
	if !ok {
		return f.Fail(ExitCommandError, ErrCodeUnknownDomain,
			fmt.Sprintf("unknown domain %q (registered: %v)", args[0], s.dispatcher.Domains()), nil)
	}
	return f.Success(ShowResult{Seq: snap.Seq, Domain: args[0], Value: v})
}
