// Package jsonl provides an append-only JSONL log. The store uses it as an
// audit trail alongside SQLite: one line per message event.
package jsonl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Writer appends JSON lines to a single file. Safe for concurrent use
// within a process (mutex) and across processes (flock).
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates a writer for the given path, creating the file and
// parent directories if they don't exist.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}

	return &Writer{path: path}, nil
}

// Append marshals the event and appends it as one line. The file lock is
// held for the duration of the write so a line is never interleaved.
func (w *Writer) Append(event any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock log: %w", err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append to log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}

	return nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Close releases the writer. The file handle is opened per append, so there
// is nothing to tear down; Close exists for symmetry with other resources.
func (w *Writer) Close() error {
	return nil
}
