package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DataDir string
	Journal string
	Catalog string

	// LogLevel comes from STATEKEEP_LOG_LEVEL; --verbose overrides it.
	LogLevel string

	configErr error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the statekeep CLI.
// Flag defaults come from the STATEKEEP_* environment.
func NewRootCommand() *cobra.Command {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Config{DataDir: ".", LogLevel: "info", Format: "text"}
	}
	opts := &RootOptions{LogLevel: cfg.LogLevel, configErr: cfgErr}

	cmd := &cobra.Command{
		Use:   "statekeep",
		Short: "statekeep - registry-driven state store",
		Long: `Dispatch events to a fixed set of state domains.

Every domain owns one JSON file in the data directory. Each dispatch runs the
event through every domain's transform and rewrites every file, or changes
nothing at all.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", opts.configErr)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return setupLogging(opts, cmd.ErrOrStderr())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", cfg.DataDir, "directory holding <domain>.json files")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", cfg.Journal, "SQLite dispatch journal (empty disables)")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", cfg.Catalog, "CUE catalog declaring extra domains")

	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setupLogging installs a text handler on w as the default slog logger.
func setupLogging(opts *RootOptions, w io.Writer) error {
	level, err := config.Config{LogLevel: opts.LogLevel}.SlogLevel()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}
