package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval is used when fsnotify is unavailable, for
// example on network filesystems.
const DefaultPollInterval = 10 * time.Second

// PollingWatcher detects changes by periodically walking the vault
// and diffing modification times.
type PollingWatcher struct {
	root     string
	interval time.Duration
	logger   *slog.Logger

	events chan FileEvent
	errors chan error

	mu       sync.Mutex
	snapshot map[string]time.Time
	stopped  bool
	stop     chan struct{}
}

var _ Watcher = (*PollingWatcher)(nil)

// NewPollingWatcher creates a polling watcher over the vault root.
func NewPollingWatcher(root string, interval time.Duration, logger *slog.Logger) (*PollingWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingWatcher{
		root:     abs,
		interval: interval,
		logger:   logger,
		events:   make(chan FileEvent, 64),
		errors:   make(chan error, 8),
		stop:     make(chan struct{}),
	}, nil
}

// Start takes the initial snapshot and begins polling.
func (p *PollingWatcher) Start(ctx context.Context) error {
	snap, err := p.scan()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()

	go p.loop(ctx)
	return nil
}

func (p *PollingWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.diff()
		}
	}
}

func (p *PollingWatcher) scan() (map[string]time.Time, error) {
	snap := make(map[string]time.Time)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != p.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if isHiddenComponent(rel) || !isMarkdownPath(rel) {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			snap[rel] = info.ModTime()
		}
		return nil
	})
	return snap, err
}

func (p *PollingWatcher) diff() {
	current, err := p.scan()
	if err != nil {
		select {
		case p.errors <- err:
		default:
		}
		return
	}

	p.mu.Lock()
	previous := p.snapshot
	p.snapshot = current
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	now := time.Now()
	for path, mod := range current {
		old, existed := previous[path]
		if !existed || mod.After(old) {
			p.emit(FileEvent{Path: path, Operation: OpChange, Time: now})
		}
	}
	for path := range previous {
		if _, still := current[path]; !still {
			p.emit(FileEvent{Path: path, Operation: OpDelete, Time: now})
		}
	}
}

func (p *PollingWatcher) emit(ev FileEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("poll event dropped, channel full", "path", ev.Path)
	}
}

// Events returns the event stream.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the error stream.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// Stop halts polling.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stop)
	return nil
}
