package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/continuum/clock"
	"github.com/driftline/continuum/internal/lockfile"
)

func testOptions(t *testing.T, backend string) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.DataDir = t.TempDir()
	opts.Backend = backend
	return opts
}

func TestOpenEndToEnd(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			clk := clock.NewManual(1000)
			l, err := Open(testOptions(t, backend), WithClock(clk))
			require.NoError(t, err)
			defer l.Close()

			assert.NotEmpty(t, l.Identity.DID())

			_, err = l.Memory.RememberEvent(l.Identity.DID(), "note", "k", []byte("v"))
			require.NoError(t, err)
			clk.Advance(500)

			_, m, err := l.Continuum.WithEpoch([]byte("manifesto"), nil, nil)
			require.NoError(t, err)
			assert.Equal(t, l.Identity.DID(), m.DID)
			assert.NotEmpty(t, l.Memory.HeadHash())

			report := l.Continuum.AnalyzeLineage(0, nil)
			assert.True(t, report.IsLinear)
			assert.True(t, report.SignaturesValid)
		})
	}
}

func TestOpenValidatesOptions(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)

	opts := testOptions(t, "postgres")
	_, err = Open(opts)
	assert.Error(t, err)
}

func TestOpenLockContention(t *testing.T) {
	opts := testOptions(t, BackendFile)

	first, err := Open(opts)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(opts)
	assert.ErrorIs(t, err, lockfile.ErrHeld)
}

func TestOpenWithoutLock(t *testing.T) {
	opts := testOptions(t, BackendFile)
	opts.LockFile = false

	l, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestReopenContinuity(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			opts := testOptions(t, backend)
			clk := clock.NewManual(1000)

			first, err := Open(opts, WithClock(clk))
			require.NoError(t, err)
			did := first.Identity.DID()
			_, m1, err := first.Continuum.WithEpoch(nil, nil, nil)
			require.NoError(t, err)
			head := first.Memory.HeadHash()
			require.NoError(t, first.Close())

			clk.Advance(500)
			second, err := Open(opts, WithClock(clk))
			require.NoError(t, err)
			defer second.Close()

			assert.Equal(t, did, second.Identity.DID(), "identity persists")
			assert.Equal(t, head, second.Memory.HeadHash(), "chain replays identically")

			_, m2, err := second.Continuum.WithEpoch(nil, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, m1.EpochID, m2.ParentID, "lineage continues across restarts")
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	opts := testOptions(t, BackendFile)
	l, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// The lock was released: a new instance can open the same directory.
	again, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
