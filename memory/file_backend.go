package memory

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	eventsFileName = "events.jsonl"
	blobsDirName   = "blobs"
	blobFileSuffix = ".bin"

	// Persisted log lines larger than this abort the replay scan rather
	// than being silently truncated.
	maxEventLineBytes = 16 << 20
)

// FileBackend persists the ledger as plain files under one root
// directory: an append-only JSONL event log plus one file per unique blob
// digest.
//
//	<root>/events.jsonl
//	<root>/blobs/<digest>.bin
//
// The log file handle stays open in append mode for the backend's
// lifetime. Multi-process access to the same root is unsafe; deployments
// enforce single-instance ownership (see internal/lockfile).
type FileBackend struct {
	root      string
	blobsDir  string
	eventsLog *os.File
}

// OpenFileBackend creates or opens the file layout under root.
func OpenFileBackend(root string) (*FileBackend, error) {
	if root == "" {
		return nil, errors.New("memory: root directory must not be empty")
	}

	blobsDir := filepath.Join(root, blobsDirName)
	if err := os.MkdirAll(blobsDir, 0o700); err != nil {
		return nil, fmt.Errorf("memory: create %s: %w", blobsDir, err)
	}

	eventsPath := filepath.Join(root, eventsFileName)
	log, err := os.OpenFile(eventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", eventsPath, err)
	}

	return &FileBackend{
		root:      root,
		blobsDir:  blobsDir,
		eventsLog: log,
	}, nil
}

// AppendEvent writes one serialized event line to the log.
func (b *FileBackend) AppendEvent(ev Event) error {
	line, err := marshalEventLine(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := b.eventsLog.Write(line); err != nil {
		return fmt.Errorf("append to event log: %w", err)
	}
	return nil
}

// ReplayEvents reads the full log in file order. Empty and malformed
// lines are skipped and counted; I/O failures abort the scan.
func (b *FileBackend) ReplayEvents(fn func(Event)) (int, error) {
	f, err := os.Open(filepath.Join(b.root, eventsFileName))
	if err != nil {
		return 0, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := unmarshalEventLine(line)
		if err != nil {
			skipped++
			continue
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("scan event log: %w", err)
	}
	return skipped, nil
}

// WriteBlob stores the blob under its digest if absent. The write goes to
// a temp file first and is renamed into place, so a crash never leaves a
// truncated blob under a valid digest name.
func (b *FileBackend) WriteBlob(digest string, data []byte) (bool, error) {
	path := filepath.Join(b.blobsDir, digest+blobFileSuffix)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat blob: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return false, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("rename blob: %w", err)
	}
	return true, nil
}

// ReadBlob returns the stored bytes for digest.
func (b *FileBackend) ReadBlob(digest string) ([]byte, error) {
	path := filepath.Join(b.blobsDir, digest+blobFileSuffix)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Close closes the event log handle.
func (b *FileBackend) Close() error {
	return b.eventsLog.Close()
}

// Root returns the backend's storage directory.
func (b *FileBackend) Root() string {
	return b.root
}
