package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordDispatches(t *testing.T, dir, journalPath string) {
	t.Helper()
	steps := [][]string{
		{"add_source", `{"name":"a"}`},
		{"add_reading", "1"},
		{"tick"},
		{"add_source", `{"name":"b"}`},
	}
	for _, s := range steps {
		args := append([]string{"dispatch"}, s...)
		args = append(args, "--data-dir", dir, "--journal", journalPath)
		_, err := execute(t, "", args...)
		require.NoError(t, err)
	}
}

func TestReplay_Deterministic(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	recordDispatches(t, dir, journalPath)

	into := t.TempDir()
	out, err := execute(t, "", "replay", journalPath, "--into", into)
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 4 dispatch(es), final seq 4")
	assert.Contains(t, out, "✓ Replay matches the journal")

	assert.Equal(t, readDomain(t, dir, "sources"), readDomain(t, into, "sources"))
	assert.Equal(t, readDomain(t, dir, "readings"), readDomain(t, into, "readings"))
}

func TestReplay_JSON(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	recordDispatches(t, dir, journalPath)

	out, err := execute(t, "", "replay", "--journal", journalPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ReplaySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Applied)
	assert.True(t, resp.Data.Deterministic)
	assert.Empty(t, resp.Data.Mismatches)
}

func TestReplay_DivergentCatalog(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	recordDispatches(t, dir, journalPath)

	// An extra domain changes every snapshot hash
	catalogPath := filepath.Join(t.TempDir(), "catalog.cue")
	writeCatalog(t, catalogPath, `domains: extra: {}`)

	out, err := execute(t, "", "replay", journalPath, "--catalog", catalogPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Determinism verification failed")
}

func TestReplay_MissingJournal(t *testing.T) {
	_, err := execute(t, "", "replay", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
