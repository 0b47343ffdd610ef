package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftline/continuum/canonical"
	"github.com/driftline/continuum/clock"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memory: store closed")

// ErrBlobNotFound is returned when a requested blob digest does not exist.
var ErrBlobNotFound = errors.New("memory: blob not found")

// Backend provides durable storage for the event log and blob space.
// Implementations: FileBackend, SQLiteBackend.
//
// ReplayEvents must yield events in append order and must skip - not fail
// on - individual malformed records, returning how many were skipped.
// Durability failures are always hard errors.
type Backend interface {
	// AppendEvent durably appends one event to the log.
	AppendEvent(ev Event) error

	// ReplayEvents calls fn for every persisted event in append order.
	// Malformed records are skipped and counted, never surfaced as errors.
	ReplayEvents(fn func(Event)) (skipped int, err error)

	// WriteBlob stores data under digest if absent. Reports whether a
	// physical write happened; a second call for the same digest must
	// report false and write nothing.
	WriteBlob(digest string, data []byte) (wrote bool, err error)

	// ReadBlob returns the stored bytes for digest, or ErrBlobNotFound.
	ReadBlob(digest string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}

// Export is the bulk export envelope: the current head hash plus every
// event at or after the requested timestamp.
type Export struct {
	HeadHash string  `json:"head_hash"`
	Events   []Event `json:"events"`
}

// Store is the Memory Store: the in-memory event sequence, the running
// head-hash chain, and content-addressed blobs, backed by a Backend for
// durability.
//
// Thread-safety model:
//   - one writer at a time (RememberEvent, PutBlob) - callers serialize
//   - snapshot reads (HeadHash, Events, ExportSince) are safe concurrently
//     with a writer; they never observe a half-applied append
type Store struct {
	mu      sync.RWMutex
	backend Backend
	clk     clock.Clock
	log     *slog.Logger
	events  []Event
	head    []byte
	skipped int
	closed  bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the clock used to stamp events. Default: clock.System.
func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) {
		s.clk = c
	}
}

// WithLogger sets the logger for degraded-state warnings.
// Default: slog.Default().
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore opens a store over the given backend, replaying the entire
// durable log to rebuild the event sequence and head-hash chain. The
// replay is O(n) in total history size; no compaction is provided.
//
// Malformed persisted records are skipped, counted (SkippedRecords), and
// logged - durability failures abort the open.
func NewStore(backend Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("memory: backend must not be nil")
	}

	s := &Store{
		backend: backend,
		clk:     clock.System{},
		log:     slog.Default(),
		head:    genesisHead(),
	}
	for _, opt := range opts {
		opt(s)
	}

	skipped, err := backend.ReplayEvents(func(ev Event) {
		s.events = append(s.events, ev)
		s.head = foldHead(s.head, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("memory: replay events: %w", err)
	}
	s.skipped = skipped
	if skipped > 0 {
		s.log.Warn("skipped malformed event records during replay",
			"skipped", skipped, "loaded", len(s.events))
	}
	return s, nil
}

// genesisHead is the chain state before any event: the domain digest over
// no data.
func genesisHead() []byte {
	return canonical.Digest(canonical.DomainHead, nil)
}

// foldHead advances the chain by one event:
// head = digest(prev_head || fingerprint).
func foldHead(head []byte, ev Event) []byte {
	fp := fingerprint(ev)
	buf := make([]byte, 0, len(head)+len(fp))
	buf = append(buf, head...)
	buf = append(buf, fp...)
	return canonical.Digest(canonical.DomainHead, buf)
}

// RememberEvent stamps, appends, and durably persists one event, folding
// its fingerprint into the head-hash chain.
//
// The in-memory update and the durable append are not transactionally
// linked: if the append fails, the in-memory sequence has already
// advanced. Callers treating storage failures as fatal (the intended
// posture) are unaffected; anyone continuing past the error must reopen
// the store to resynchronize.
func (s *Store) RememberEvent(actorDID, eventType, key string, value []byte) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Event{}, ErrClosed
	}

	ev := Event{
		TSMS:     s.clk.NowMS(),
		ActorDID: actorDID,
		Type:     eventType,
		Key:      key,
		Value:    value,
	}
	s.events = append(s.events, ev)
	s.head = foldHead(s.head, ev)

	if err := s.backend.AppendEvent(ev); err != nil {
		return ev, fmt.Errorf("memory: append event: %w", err)
	}
	return ev, nil
}

// PutBlob stores data content-addressed and returns its digest. Idempotent:
// the same bytes always yield the same digest, and at most one physical
// write ever happens per unique digest.
func (s *Store) PutBlob(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	digest := canonical.DigestHex(canonical.DomainBlob, data)
	if _, err := s.backend.WriteBlob(digest, data); err != nil {
		return "", fmt.Errorf("memory: write blob: %w", err)
	}
	return digest, nil
}

// GetBlob returns the bytes stored under digest, or ErrBlobNotFound.
func (s *Store) GetBlob(digest string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.backend.ReadBlob(digest)
}

// HeadHash returns the chain's current value: a compact, order-sensitive
// summary of the full event history.
func (s *Store) HeadHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return canonical.EncodeHex(s.head)
}

// ExportSince returns the current head hash plus all events with a
// timestamp at or after sinceMS, for external replication or inspection.
// The returned slice is a snapshot; it does not alias the live sequence.
func (s *Store) ExportSince(sinceMS int64) Export {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Export{
		HeadHash: canonical.EncodeHex(s.head),
		Events:   []Event{},
	}
	for _, ev := range s.events {
		if ev.TSMS < sinceMS {
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out
}

// Events returns a snapshot copy of the full event sequence in append
// order. Value bytes are shared with the live events; treat them as
// read-only.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Event, len(s.events))
	copy(snapshot, s.events)
	return snapshot
}

// Len returns the number of events in the sequence.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// SkippedRecords reports how many malformed records were skipped while
// replaying the durable log at open.
func (s *Store) SkippedRecords() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// Close releases the backend. Further mutations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
