package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/continuum/clock"
)

const (
	testActor = "did:key:zTestActor"

	// Chain values for the canonical two-event history used below:
	// ("note","greeting","hello") at t=1000, ("note","farewell","bye") at
	// t=1500.
	genesisHeadHex  = "9cc0b42fd25276885f16188ea49d3c6359d3a489916004f0b8a0d00bc4ecd9d5"
	headAfterOneHex = "e2e842ea1d521025b4bb28651ebad140d2459776918f922dfdbb697a1dae44e2"
	headAfterTwoHex = "8a5b1a186f90d2014846a9434a630c4f269f781460a373afa86919860e8ba04e"

	helloBlobDigest = "3ad04cc8ebebd0a4b0ae417826783fba7b8d09e0f89c41ca4f7e65e98f056122"
)

// backends opens each backend implementation over a caller-owned directory,
// so tests can close and reopen the same storage.
var backends = map[string]func(t *testing.T, dir string) Backend{
	"file": func(t *testing.T, dir string) Backend {
		b, err := OpenFileBackend(dir)
		require.NoError(t, err)
		return b
	},
	"sqlite": func(t *testing.T, dir string) Backend {
		b, err := OpenSQLiteBackend(filepath.Join(dir, "memory.db"))
		require.NoError(t, err)
		return b
	},
}

func newTestStore(t *testing.T, b Backend, clk clock.Clock) *Store {
	t.Helper()
	s, err := NewStore(b, WithClock(clk))
	require.NoError(t, err)
	return s
}

func rememberTwo(t *testing.T, s *Store, clk *clock.Manual) {
	t.Helper()
	_, err := s.RememberEvent(testActor, "note", "greeting", []byte("hello"))
	require.NoError(t, err)
	clk.Advance(500)
	_, err = s.RememberEvent(testActor, "note", "farewell", []byte("bye"))
	require.NoError(t, err)
}

func TestStoreRememberEvent(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewManual(1000)
			s := newTestStore(t, open(t, t.TempDir()), clk)
			defer s.Close()

			assert.Equal(t, genesisHeadHex, s.HeadHash())
			assert.Equal(t, 0, s.Len())

			ev, err := s.RememberEvent(testActor, "note", "greeting", []byte("hello"))
			require.NoError(t, err)
			assert.Equal(t, int64(1000), ev.TSMS)
			assert.Equal(t, testActor, ev.ActorDID)
			assert.Equal(t, headAfterOneHex, s.HeadHash())

			clk.Advance(500)
			_, err = s.RememberEvent(testActor, "note", "farewell", []byte("bye"))
			require.NoError(t, err)
			assert.Equal(t, headAfterTwoHex, s.HeadHash())
			assert.Equal(t, 2, s.Len())

			events := s.Events()
			require.Len(t, events, 2)
			assert.Equal(t, "greeting", events[0].Key)
			assert.Equal(t, "farewell", events[1].Key)
		})
	}
}

func TestStoreReloadDeterminism(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			clk := clock.NewManual(1000)

			s := newTestStore(t, open(t, dir), clk)
			rememberTwo(t, s, clk)
			require.NoError(t, s.Close())

			reopened := newTestStore(t, open(t, dir), clk)
			defer reopened.Close()

			assert.Equal(t, headAfterTwoHex, reopened.HeadHash())
			assert.Equal(t, 2, reopened.Len())
			assert.Equal(t, 0, reopened.SkippedRecords())

			events := reopened.Events()
			require.Len(t, events, 2)
			assert.Equal(t, []byte("hello"), events[0].Value)
			assert.Equal(t, int64(1500), events[1].TSMS)
		})
	}
}

func TestStoreRememberEventNilValue(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			clk := clock.NewManual(1000)

			s := newTestStore(t, open(t, dir), clk)
			_, err := s.RememberEvent(testActor, "note", "valueless", nil)
			require.NoError(t, err)
			_, err = s.RememberEvent(testActor, "note", "empty", []byte{})
			require.NoError(t, err)
			head := s.HeadHash()
			require.NoError(t, s.Close())

			// Both backends replay a valueless event as empty bytes and
			// reproduce the same chain.
			reopened := newTestStore(t, open(t, dir), clk)
			defer reopened.Close()

			assert.Equal(t, head, reopened.HeadHash())
			events := reopened.Events()
			require.Len(t, events, 2)
			assert.Empty(t, events[0].Value)
			assert.Empty(t, events[1].Value)
		})
	}
}

func TestStoreHeadSensitivity(t *testing.T) {
	remember := func(t *testing.T, keys []string) string {
		clk := clock.NewManual(1000)
		b, err := OpenFileBackend(t.TempDir())
		require.NoError(t, err)
		s := newTestStore(t, b, clk)
		defer s.Close()
		for _, k := range keys {
			_, err := s.RememberEvent(testActor, "note", k, []byte("v"))
			require.NoError(t, err)
		}
		return s.HeadHash()
	}

	base := remember(t, []string{"a", "b"})

	assert.NotEqual(t, base, remember(t, []string{"a", "c"}),
		"changing one field must change the head")
	assert.NotEqual(t, base, remember(t, []string{"b", "a"}),
		"reordering events must change the head")
	assert.Equal(t, base, remember(t, []string{"a", "b"}),
		"identical histories must agree on the head")
}

func TestStoreBlobs(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			backend := open(t, t.TempDir())
			s, err := NewStore(backend)
			require.NoError(t, err)
			defer s.Close()

			digest, err := s.PutBlob([]byte("hello"))
			require.NoError(t, err)
			assert.Equal(t, helloBlobDigest, digest)

			// Idempotent: the repeat yields the same digest and skips the
			// physical write.
			again, err := s.PutBlob([]byte("hello"))
			require.NoError(t, err)
			assert.Equal(t, digest, again)

			wrote, err := backend.WriteBlob(digest, []byte("hello"))
			require.NoError(t, err)
			assert.False(t, wrote)

			data, err := s.GetBlob(digest)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), data)

			_, err = s.GetBlob("0000000000000000000000000000000000000000000000000000000000000000")
			assert.ErrorIs(t, err, ErrBlobNotFound)
		})
	}
}

func TestStoreExportSince(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewManual(1000)
			s := newTestStore(t, open(t, t.TempDir()), clk)
			defer s.Close()
			rememberTwo(t, s, clk)

			all := s.ExportSince(0)
			assert.Equal(t, headAfterTwoHex, all.HeadHash)
			assert.Len(t, all.Events, 2)

			// The cutoff is inclusive.
			late := s.ExportSince(1500)
			assert.Equal(t, headAfterTwoHex, late.HeadHash)
			require.Len(t, late.Events, 1)
			assert.Equal(t, "farewell", late.Events[0].Key)

			none := s.ExportSince(9000)
			assert.NotNil(t, none.Events)
			assert.Empty(t, none.Events)
		})
	}
}

func TestStoreClosed(t *testing.T) {
	b, err := OpenFileBackend(t.TempDir())
	require.NoError(t, err)
	s, err := NewStore(b)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	_, err = s.RememberEvent(testActor, "note", "k", nil)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.PutBlob([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.GetBlob(helloBlobDigest)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewStoreRequiresBackend(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}
