// Package lockfile enforces the single-instance invariant for a storage
// directory: the event log and blob space tolerate exactly one owning
// process, so a second opener must be turned away before it can interleave
// appends.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// FileName is the lock file's name inside the guarded directory.
const FileName = "LOCK"

// ErrHeld is returned when another live process holds the lock.
var ErrHeld = errors.New("lockfile: storage directory is locked by another process")

// record is the lock file's content. The owner token is a UUIDv7, so
// tokens sort by acquisition time when debugging stale-lock incidents.
type record struct {
	Owner      string `json:"owner"`
	PID        int    `json:"pid"`
	AcquiredMS int64  `json:"acquired_ms"`
}

// Lock is a held directory lock. Release it when the owning store shuts
// down.
type Lock struct {
	path  string
	owner string
}

// Acquire takes the lock for dir, creating the directory if needed.
//
// An existing lock whose recorded pid is dead - or whose record is
// unreadable - is considered stale and taken over. A lock held by a live
// process yields ErrHeld.
func Acquire(dir string) (*Lock, error) {
	if dir == "" {
		return nil, errors.New("lockfile: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("lockfile: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName)
	lock, err := tryCreate(path)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	if holderAlive(path) {
		return nil, fmt.Errorf("%w: %s", ErrHeld, path)
	}

	// Stale: the recorded owner is gone. Remove and retry once; a race
	// with another opener resolves to exactly one winner via O_EXCL.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("lockfile: remove stale lock: %w", err)
	}
	lock, err = tryCreate(path)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, path)
		}
		return nil, err
	}
	return lock, nil
}

// tryCreate attempts the exclusive create and writes the owner record.
func tryCreate(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, err
		}
		return nil, fmt.Errorf("lockfile: create %s: %w", path, err)
	}
	defer f.Close()

	owner := uuid.Must(uuid.NewV7()).String()
	data, err := json.Marshal(record{
		Owner:      owner,
		PID:        os.Getpid(),
		AcquiredMS: time.Now().UnixMilli(),
	})
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("lockfile: encode record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("lockfile: write record: %w", err)
	}
	return &Lock{path: path, owner: owner}, nil
}

// holderAlive reports whether the lock file names a live process. An
// unreadable or unparsable record counts as dead.
func holderAlive(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		return false
	}

	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lockfile: release: %w", err)
	}
	return nil
}

// Owner returns the lock's owner token.
func (l *Lock) Owner() string {
	return l.owner
}

// Path returns the lock file's location.
func (l *Lock) Path() string {
	return l.path
}
