package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// fileRotator is an io.WriteCloser over the daemon log file that
// rotates it when it outgrows maxBytes, keeping at most maxBackups
// rotated files.
type fileRotator struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// newFileRotator opens (or creates) the log file at path. A
// non-positive maxSizeMB disables size-based rotation.
func newFileRotator(path string, maxSizeMB, maxBackups int) (*fileRotator, error) {
	r := &fileRotator{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *fileRotator) open() error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	return nil
}

// Write implements io.Writer, rotating first when the write would push
// the file past maxBytes.
func (r *fileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}

	if r.maxBytes > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate renames the current file to a timestamped backup, opens a
// fresh one, and prunes backups beyond maxBackups.
func (r *fileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	if err := os.Rename(r.path, r.backupName(time.Now())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.open(); err != nil {
		return err
	}

	r.cleanup()
	return nil
}

// backupName derives the rotated filename, e.g. redactd-20260831-140502.log.
func (r *fileRotator) backupName(t time.Time) string {
	dir := filepath.Dir(r.path)
	base := filepath.Base(r.path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, t.UTC().Format("20060102-150405"), ext))
}

// cleanup removes the oldest rotated files beyond maxBackups. A
// non-positive maxBackups keeps everything.
func (r *fileRotator) cleanup() {
	if r.maxBackups <= 0 {
		return
	}

	base := filepath.Base(r.path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(r.path), name+"-*"+ext))
	if err != nil {
		return
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: m, modTime: info.ModTime()})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.Before(backups[j].modTime)
	})

	for i := 0; i < len(backups)-r.maxBackups; i++ {
		os.Remove(backups[i].path)
	}
}

// Close closes the underlying file.
func (r *fileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
