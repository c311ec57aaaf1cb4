package translog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"redactd/internal/logging"
)

// Watcher observes a transcript directory and invokes a callback for
// transcripts that change, debounced so a burst of appends triggers one
// call. The auto-rescan path uses it to reprocess transcripts dropped
// into the directory by other hosts.
type Watcher struct {
	dir      string
	onFile   func(path string)
	debounce time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over dir. onFile runs on the watcher's
// goroutine after writes to a .jsonl file settle.
func NewWatcher(dir string, onFile func(path string)) *Watcher {
	return &Watcher{
		dir:      dir,
		onFile:   onFile,
		debounce: 2 * time.Second,
		log:      logging.Default().WithComponent("translog"),
		pending:  make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled, dispatching debounced callbacks
// for transcript changes.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create directory watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching transcript directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".jsonl") || strings.HasSuffix(ev.Name, ".new") {
				continue
			}
			w.schedule(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("directory watch error", "error", err)
		}
	}
}

// schedule arms or resets the debounce timer for one file.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		w.log.Debug("transcript settled", "file", filepath.Base(path))
		w.onFile(path)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
