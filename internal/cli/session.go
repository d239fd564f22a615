package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/statekeep/internal/catalog"
	"github.com/roach88/statekeep/internal/dispatch"
	"github.com/roach88/statekeep/internal/journal"
	"github.com/roach88/statekeep/internal/persist"
	"github.com/roach88/statekeep/internal/registry"
)

// session is an open dispatcher plus the resources it holds.
type session struct {
	dispatcher *dispatch.Dispatcher
	journal    *journal.Journal
}

// openSession loads every domain from the data dir, attaching the journal
// when one is configured.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	reg, err := buildRegistry(opts.Catalog)
	if err != nil {
		return nil, err
	}

	files := persist.NewDir(opts.DataDir)
	if err := files.Ensure(); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data dir", err)
	}

	s := &session{}
	var dopts []dispatch.Option
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		s.journal = j
		dopts = append(dopts, dispatch.WithJournal(j))
	}

	d, err := dispatch.Open(ctx, reg, files, dopts...)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load state", err)
	}
	s.dispatcher = d

	return s, nil
}

// Close releases the journal, if any.
func (s *session) Close() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		slog.Error("error closing journal", "error", err)
	}
}

// buildRegistry returns the default registry, extended by the catalog at
// path when path is set.
func buildRegistry(path string) (*registry.Registry, error) {
	reg := registry.Default()
	if path == "" {
		return reg, nil
	}

	extra, err := catalog.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	reg, err = reg.With(extra...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid catalog", err)
	}
	slog.Debug("catalog loaded", "path", path, "domains", len(extra))
	return reg, nil
}
