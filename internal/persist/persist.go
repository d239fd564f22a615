// Package persist mirrors each domain's value to a JSON file.
//
// Every domain owns exactly one file, <dir>/<domain>.json. Load materializes
// the domain's default the first time the file is requested; Save replaces
// the file in full.
//
// # Durability
//
// Writes go to a temporary file in the same directory, are synced, and are
// then renamed over the target. A crash mid-write leaves either the old or
// the new content, never a truncated file. Stray temporary files
// (<domain>.json.tmp-*) may remain after a crash and are ignored.
//
// Errors are never retried; they are returned as *Error.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/statekeep/internal/value"
)

// FileExt is the extension of every domain file.
const FileExt = ".json"

// DefaultMode is the permission mode for domain files.
const DefaultMode os.FileMode = 0o644

// Error describes a failed persistence operation.
type Error struct {
	Op     string // "load" or "save"
	Domain string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Domain, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dir stores domain files in a single directory.
// Dir is safe for concurrent use on distinct domains; callers serialize
// access to the same domain.
type Dir struct {
	root string
	mode os.FileMode
}

// Option configures a Dir.
type Option func(*Dir)

// WithMode sets the permission mode used for new files.
func WithMode(mode os.FileMode) Option {
	return func(d *Dir) {
		d.mode = mode
	}
}

// NewDir returns a Dir rooted at root. An empty root means the working
// directory. The directory is not created; see Ensure.
func NewDir(root string, opts ...Option) *Dir {
	if root == "" {
		root = "."
	}
	d := &Dir{root: root, mode: DefaultMode}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ensure creates the root directory if it does not exist.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return &Error{Op: "ensure", Path: d.root, Err: err}
	}
	return nil
}

// Root returns the directory holding the domain files.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the file path for domain.
func (d *Dir) Path(domain string) string {
	return filepath.Join(d.root, domain+FileExt)
}

// Load returns the raw content of domain's file.
//
// If the file does not exist, def is written first and the newly created
// file is read back. Parsing the returned bytes is the caller's job.
func (d *Dir) Load(domain string, def value.Value) ([]byte, error) {
	path := d.Path(domain)

	b, err := os.ReadFile(path)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Op: "load", Domain: domain, Path: path, Err: err}
	}

	if err := d.Save(domain, def); err != nil {
		return nil, err
	}

	b, err = os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "load", Domain: domain, Path: path, Err: err}
	}
	return b, nil
}

// Save serializes v and replaces domain's file with it.
func (d *Dir) Save(domain string, v value.Value) error {
	path := d.Path(domain)

	b, err := value.Marshal(v)
	if err != nil {
		return &Error{Op: "save", Domain: domain, Path: path, Err: err}
	}
	if err := writeFile(path, b, d.mode); err != nil {
		return &Error{Op: "save", Domain: domain, Path: path, Err: err}
	}
	return nil
}

// writeFile writes bytes via a temp file, then atomically replaces the target.
func writeFile(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	// Best-effort cleanup if anything fails before rename.
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
