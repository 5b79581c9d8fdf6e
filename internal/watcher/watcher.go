// Package watcher turns filesystem activity in the vault into a
// debounced stream of per-path change events for the incremental
// updater.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation classifies a file event.
type Operation int

const (
	// OpChange covers creation and modification; the updater re-reads
	// the document either way.
	OpChange Operation = iota

	// OpDelete covers removal and rename-away.
	OpDelete
)

func (op Operation) String() string {
	if op == OpDelete {
		return "delete"
	}
	return "change"
}

// FileEvent is one vault change.
type FileEvent struct {
	// Path is vault-relative, slash-separated.
	Path      string
	Operation Operation
	Time      time.Time
}

// Watcher emits vault file events.
type Watcher interface {
	Start(ctx context.Context) error
	Events() <-chan FileEvent
	Errors() <-chan error
	Stop() error
}

func isMarkdownPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

func isHiddenComponent(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// FSWatcher watches the vault directory tree with fsnotify. New
// subdirectories are added to the watch as they appear.
type FSWatcher struct {
	root   string
	logger *slog.Logger

	events chan FileEvent
	errors chan error

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopped bool
	done    chan struct{}
}

var _ Watcher = (*FSWatcher)(nil)

// NewFSWatcher creates a watcher rooted at the vault directory.
func NewFSWatcher(root string, logger *slog.Logger) (*FSWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSWatcher{
		root:   abs,
		logger: logger,
		events: make(chan FileEvent, 64),
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}, nil
}

// Start begins watching. It returns after the watch is established;
// events flow until Stop or context cancellation.
func (w *FSWatcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		fsw.Close()
		return err
	}

	go w.loop(ctx)
	return nil
}

func (w *FSWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *FSWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("watch error dropped", "error", err)
			}
		}
	}
}

func (w *FSWatcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if isHiddenComponent(rel) {
		return
	}

	// Watch directories created after startup.
	if ev.Op.Has(fsnotify.Create) {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if !isMarkdownPath(rel) {
		return
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		op = OpChange
	default:
		return
	}

	select {
	case w.events <- FileEvent{Path: rel, Operation: op, Time: time.Now()}:
	default:
		w.logger.Warn("event dropped, channel full", "path", rel)
	}
}

// Events returns the event stream.
func (w *FSWatcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the error stream.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// Stop closes the underlying watcher.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
