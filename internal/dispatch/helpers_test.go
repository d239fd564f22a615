package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/persist"
	"github.com/roach88/statekeep/internal/registry"
	"github.com/roach88/statekeep/internal/value"
)

var errDiskFull = errors.New("disk full")

// recordingFiles wraps a persist.Dir, counting saves and failing on demand.
type recordingFiles struct {
	*persist.Dir

	mu       sync.Mutex
	saves    map[string]int
	failSave map[string]error
	failLoad map[string]error
}

func newRecordingFiles(dir string) *recordingFiles {
	return &recordingFiles{
		Dir:      persist.NewDir(dir),
		saves:    make(map[string]int),
		failSave: make(map[string]error),
		failLoad: make(map[string]error),
	}
}

func (f *recordingFiles) Load(domain string, def value.Value) ([]byte, error) {
	f.mu.Lock()
	err := f.failLoad[domain]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Dir.Load(domain, def)
}

func (f *recordingFiles) Save(domain string, v value.Value) error {
	f.mu.Lock()
	err := f.failSave[domain]
	if err == nil {
		f.saves[domain]++
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Dir.Save(domain, v)
}

func (f *recordingFiles) saveCount(domain string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[domain]
}

func (f *recordingFiles) resetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = make(map[string]int)
}

func (f *recordingFiles) failSaves(domain string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave[domain] = err
}

// openTestDispatcher opens a dispatcher over the default registry in dir.
func openTestDispatcher(t *testing.T, dir string, opts ...Option) (*Dispatcher, *recordingFiles) {
	t.Helper()
	files := newRecordingFiles(dir)
	d, err := Open(context.Background(), registry.Default(), files, opts...)
	require.NoError(t, err)
	files.resetCounts()
	return d, files
}

// readFile returns the content of a domain file in dir.
func readFile(t *testing.T, dir, domain string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, domain+persist.FileExt))
	require.NoError(t, err)
	return string(b)
}

// writeFile seeds a domain file in dir.
func writeFile(t *testing.T, dir, domain, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain+persist.FileExt), []byte(content), 0o644))
}

func mustJSON(t *testing.T, v value.Value) string {
	t.Helper()
	s, err := value.MarshalString(v)
	require.NoError(t, err)
	return s
}
