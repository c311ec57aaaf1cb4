package translog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Errors surfaced by the writer and scanner.
var (
	ErrClosed = errors.New("translog: writer is closed")
)

// Writer appends records to one transcript file. Each Append is synced
// before returning; a failed append leaves the batch retryable on the
// caller's side.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// OpenWriter opens or creates a transcript file for appending.
func OpenWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &Writer{path: path, file: f}, nil
}

// Append writes one record as a JSON line and syncs it to disk.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	line, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync record: %w", err)
	}
	return nil
}

// Path returns the transcript file path.
func (w *Writer) Path() string { return w.path }

// Close closes the transcript file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadRecords reads all records from a transcript file, dropping
// malformed lines and events rather than failing the read. It returns
// the records and the number of lines skipped.
func ReadRecords(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var records []Record
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, _, err := DecodeRecord(line)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read transcript: %w", err)
	}
	return records, skipped, nil
}
