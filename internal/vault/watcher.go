package vault

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watcherDebounce = 400 * time.Millisecond

// Events is what the watcher pushes into; the search service satisfies it.
type Events interface {
	OnCreate(path string)
	OnModify(path string)
	OnDelete(path string)
}

// Watcher bridges fsnotify events on the vault tree into vault-relative
// core events. Writes are debounced per path; a rename of the old name
// surfaces as a delete and the new name arrives as a separate create, which
// the coordinator treats as remove-then-add.
type Watcher struct {
	vault  *FSVault
	events Events
	logger *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	known    map[string]struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the vault tree.
func NewWatcher(v *FSVault, events Events, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		vault:   v,
		events:  events,
		logger:  logger,
		pending: make(map[string]*time.Timer),
		known:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins watching. Runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	if err := w.addTreeLocked(w.vault.Root()); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(ev.Name)
			return
		}
		rel := w.vault.Rel(ev.Name)
		if rel == "" || !matchExtension(ev.Name, w.vault.extensions) {
			return
		}
		w.debounce(rel)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		rel := w.vault.Rel(ev.Name)
		if rel == "" || !matchExtension(ev.Name, w.vault.extensions) {
			return
		}
		w.cancelPending(rel)
		w.mu.Lock()
		delete(w.known, rel)
		w.mu.Unlock()
		w.events.OnDelete(rel)
	}
}

// handleNewDirectory starts watching a directory created or moved into the
// vault and fires create events for the files it already contains.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Debug("watch add failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if rel := w.vault.Rel(path); rel != "" && matchExtension(path, w.vault.extensions) {
			w.debounce(rel)
		}
		return nil
	})
}

// debounce schedules a create-or-modify event for rel, collapsing bursts
// from editors that write in several syscalls.
func (w *Watcher) debounce(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[rel]; ok {
		t.Stop()
	}
	w.pending[rel] = time.AfterFunc(watcherDebounce, func() {
		w.mu.Lock()
		delete(w.pending, rel)
		_, existed := w.known[rel]
		w.known[rel] = struct{}{}
		w.mu.Unlock()
		if existed {
			w.events.OnModify(rel)
		} else {
			w.events.OnCreate(rel)
		}
	})
}

func (w *Watcher) cancelPending(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[rel]; ok {
		t.Stop()
		delete(w.pending, rel)
	}
}

func (w *Watcher) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if rel := w.vault.Rel(path); rel != "" && matchExtension(path, w.vault.extensions) {
				w.known[rel] = struct{}{}
			}
			return nil
		}
		if filepath.Base(path)[0] == '.' && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for rel, t := range w.pending {
		t.Stop()
		delete(w.pending, rel)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
