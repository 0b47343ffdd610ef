// Package ledger is the composition root: it wires one Identity Manager,
// one Memory Store, and one Continuum engine over a single storage
// directory. All dependencies are injected explicitly; there are no
// package-level singletons. Construct one Ledger per owning process or
// tenant.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/driftline/continuum/clock"
	"github.com/driftline/continuum/continuum"
	"github.com/driftline/continuum/identity"
	"github.com/driftline/continuum/internal/lockfile"
	"github.com/driftline/continuum/memory"
)

// Ledger bundles the wired triad. The components remain directly usable:
// callers invoke Identity and Memory for low-level facts, and Continuum
// for checkpoints.
type Ledger struct {
	Identity  *identity.Manager
	Memory    *memory.Store
	Continuum *continuum.Continuum

	lock   *lockfile.Lock
	closed bool
}

// Option configures the wiring.
type Option func(*settings)

type settings struct {
	clk clock.Clock
	log *slog.Logger
}

// WithClock injects a clock into every component (deterministic tests).
// Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		s.clk = c
	}
}

// WithLogger injects a logger into every component.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}

// Open validates opts, acquires the storage lock (when enabled), and
// wires the triad. On any failure every acquired resource is released.
func Open(opts Options, wiring ...Option) (*Ledger, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := settings{clk: clock.System{}, log: slog.Default()}
	for _, opt := range wiring {
		opt(&s)
	}

	var lock *lockfile.Lock
	if opts.LockFile {
		var err error
		lock, err = lockfile.Acquire(opts.DataDir)
		if err != nil {
			return nil, err
		}
	}
	fail := func(err error) (*Ledger, error) {
		if lock != nil {
			lock.Release()
		}
		return nil, err
	}

	identityPath := opts.IdentityFile
	if !filepath.IsAbs(identityPath) {
		identityPath = filepath.Join(opts.DataDir, identityPath)
	}
	id, err := identity.LoadOrCreate(identityPath, identity.WithLogger(s.log))
	if err != nil {
		return fail(err)
	}

	backend, err := openBackend(opts)
	if err != nil {
		return fail(err)
	}

	store, err := memory.NewStore(backend,
		memory.WithClock(s.clk),
		memory.WithLogger(s.log),
	)
	if err != nil {
		backend.Close()
		return fail(err)
	}

	cont, err := continuum.New(store, id,
		continuum.WithClock(s.clk),
		continuum.WithLogger(s.log),
	)
	if err != nil {
		store.Close()
		return fail(err)
	}

	return &Ledger{
		Identity:  id,
		Memory:    store,
		Continuum: cont,
		lock:      lock,
	}, nil
}

func openBackend(opts Options) (memory.Backend, error) {
	switch opts.Backend {
	case BackendFile:
		return memory.OpenFileBackend(opts.DataDir)
	case BackendSQLite:
		return memory.OpenSQLiteBackend(filepath.Join(opts.DataDir, "memory.db"))
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", opts.Backend)
	}
}

// Close releases the store and the storage lock.
func (l *Ledger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if err := l.Memory.Close(); err != nil {
		errs = append(errs, err)
	}
	if l.lock != nil {
		if err := l.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
