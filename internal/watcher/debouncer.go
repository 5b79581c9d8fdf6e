package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounceWindow collapses editor save bursts into one
// reprocessing cycle.
const DefaultDebounceWindow = 1500 * time.Millisecond

// Handler processes one debounced event. It runs outside the
// debouncer's lock; errors are the handler's responsibility.
type Handler func(ctx context.Context, event FileEvent)

// pathState is the per-path debounce state.
type pathState int

const (
	stateIdle pathState = iota
	statePending
	stateProcessing
)

// pathEntry tracks one path through the state machine.
type pathEntry struct {
	state  pathState
	timer  *time.Timer
	latest FileEvent

	// dirty marks a change that arrived while processing; the path
	// re-enters the pending state when processing finishes.
	dirty bool
}

// Debouncer runs a per-path state machine: Idle, PendingChange,
// Processing. A change moves an idle path to pending and starts the
// window timer; further changes restart the timer, cancelling the
// superseded expiry. On expiry the path processes exactly once, then
// returns to idle (or pending, if changes arrived meanwhile). Paths
// are independent: one path processing never delays another's timer.
type Debouncer struct {
	window  time.Duration
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	paths   map[string]*pathEntry
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDebouncer creates a debouncer dispatching to handler.
func NewDebouncer(window time.Duration, handler Handler, logger *slog.Logger) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		window:  window,
		handler: handler,
		logger:  logger,
		paths:   make(map[string]*pathEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Observe feeds one raw event into the state machine. The latest
// event for a path wins, so a change followed by a delete within the
// window processes as a delete.
func (d *Debouncer) Observe(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	entry, ok := d.paths[event.Path]
	if !ok {
		entry = &pathEntry{}
		d.paths[event.Path] = entry
	}
	entry.latest = event

	switch entry.state {
	case stateIdle:
		entry.state = statePending
		path := event.Path
		entry.timer = time.AfterFunc(d.window, func() { d.fire(path) })
	case statePending:
		// Restart the window; the superseded expiry is cancelled.
		entry.timer.Stop()
		path := event.Path
		entry.timer = time.AfterFunc(d.window, func() { d.fire(path) })
	case stateProcessing:
		entry.dirty = true
	}
}

// fire transitions a pending path to processing and runs the handler.
func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	entry, ok := d.paths[path]
	if !ok || d.stopped || entry.state != statePending {
		d.mu.Unlock()
		return
	}
	entry.state = stateProcessing
	event := entry.latest
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.handler(d.ctx, event)
		d.finish(path)
	}()
}

// finish returns a path to idle, or back to pending when changes
// arrived during processing.
func (d *Debouncer) finish(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.paths[path]
	if !ok {
		return
	}
	if entry.dirty && !d.stopped {
		entry.dirty = false
		entry.state = statePending
		entry.timer = time.AfterFunc(d.window, func() { d.fire(path) })
		return
	}
	entry.state = stateIdle
	delete(d.paths, path)
}

// Run consumes events from a watcher until the context ends.
func (d *Debouncer) Run(ctx context.Context, events <-chan FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Observe(ev)
		}
	}
}

// Stop cancels pending timers, cancels in-flight handler contexts,
// and waits for handlers to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, entry := range d.paths {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
