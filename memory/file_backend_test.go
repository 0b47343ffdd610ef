package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/continuum/clock"
)

func TestFileBackendSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewManual(1000)

	b, err := OpenFileBackend(dir)
	require.NoError(t, err)
	s := newTestStore(t, b, clk)
	rememberTwo(t, s, clk)
	require.NoError(t, s.Close())

	// A torn write leaves a garbage line mid-log.
	logPath := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"ts_ms\": 17, truncated garb\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopenedBackend, err := OpenFileBackend(dir)
	require.NoError(t, err)
	reopened := newTestStore(t, reopenedBackend, clk)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.SkippedRecords(), "garbage line skipped, blank line ignored")
	assert.Equal(t, 2, reopened.Len(), "intact events survive")
	assert.Equal(t, headAfterTwoHex, reopened.HeadHash())
}

func TestFileBackendRejectsEmptyRoot(t *testing.T) {
	_, err := OpenFileBackend("")
	assert.Error(t, err)
}

func TestFileBackendLayout(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenFileBackend(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, dir, b.Root())
	assert.FileExists(t, filepath.Join(dir, "events.jsonl"))
	assert.DirExists(t, filepath.Join(dir, "blobs"))

	wrote, err := b.WriteBlob("cafe", []byte("x"))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.FileExists(t, filepath.Join(dir, "blobs", "cafe.bin"))
}
