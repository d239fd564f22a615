package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// DomainExt is the file extension of a domain file.
const DomainExt = ".json"

// SeedDataDir writes raw domain file contents into dir, creating it if
// needed. Keys are domain names; values are written verbatim so callers can
// seed malformed content too.
func SeedDataDir(dir string, files map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		path := filepath.Join(dir, name+DomainExt)
		if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

// ReadDataDir returns the raw contents of the named domain files in dir.
// A missing file is reported as an error.
func ReadDataDir(dir string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name+DomainExt))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("domain file %s not written", name)
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out[name] = string(b)
	}
	return out, nil
}
