package memory

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteBackend persists the ledger in a single SQLite database: an
// events table keyed by an autoincrement sequence (the append order) and
// a blobs table keyed by content digest.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// SQLite supports one writer at a time, matching the store's
// single-writer model; the connection pool is capped at one.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend creates or opens the database at path. Safe to call
// repeatedly; schema application is idempotent.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("memory: database path must not be empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: connect database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: apply schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("memory: execute %q: %w", pragma, err)
		}
	}
	return nil
}

// AppendEvent inserts one event; seq assignment preserves append order.
func (b *SQLiteBackend) AppendEvent(ev Event) error {
	value := ev.Value
	if value == nil {
		// A nil slice would bind as NULL and trip the NOT NULL
		// constraint; a valueless event stores an empty blob, matching
		// the file backend's value_hex:"".
		value = []byte{}
	}
	_, err := b.db.Exec(`
		INSERT INTO events (ts_ms, actor_did, type, key, value)
		VALUES (?, ?, ?, ?, ?)
	`, ev.TSMS, ev.ActorDID, ev.Type, ev.Key, value)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReplayEvents scans the events table in seq order. Rows that fail to
// scan are skipped and counted, matching the file backend's tolerance of
// individual corrupt records.
func (b *SQLiteBackend) ReplayEvents(fn func(Event)) (int, error) {
	rows, err := b.db.Query(`
		SELECT ts_ms, actor_did, type, key, value
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	skipped := 0
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.TSMS, &ev.ActorDID, &ev.Type, &ev.Key, &ev.Value); err != nil {
			skipped++
			continue
		}
		fn(ev)
	}
	if err := rows.Err(); err != nil {
		return skipped, fmt.Errorf("scan events: %w", err)
	}
	return skipped, nil
}

// WriteBlob inserts the blob if its digest is new. ON CONFLICT DO NOTHING
// makes the write idempotent; rows-affected distinguishes a physical
// write from a dedup hit.
func (b *SQLiteBackend) WriteBlob(digest string, data []byte) (bool, error) {
	res, err := b.db.Exec(`
		INSERT INTO blobs (digest, content)
		VALUES (?, ?)
		ON CONFLICT(digest) DO NOTHING
	`, digest, data)
	if err != nil {
		return false, fmt.Errorf("write blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write blob: %w", err)
	}
	return n > 0, nil
}

// ReadBlob returns the stored bytes for digest.
func (b *SQLiteBackend) ReadBlob(digest string) ([]byte, error) {
	var content []byte
	err := b.db.QueryRow(`SELECT content FROM blobs WHERE digest = ?`, digest).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return content, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
