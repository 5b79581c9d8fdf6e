// Package index drives documents through the ingestion pipeline:
// read, extract, chunk, embed, and write into the composed store. It
// owns all index writes; search components only read.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/vaultscope/vaultscope/internal/chunk"
	"github.com/vaultscope/vaultscope/internal/embed"
	verrors "github.com/vaultscope/vaultscope/internal/errors"
	"github.com/vaultscope/vaultscope/internal/meta"
	"github.com/vaultscope/vaultscope/internal/source"
	"github.com/vaultscope/vaultscope/internal/store"
	"github.com/vaultscope/vaultscope/internal/watcher"
)

// DefaultWorkers is the reconciliation worker pool size.
const DefaultWorkers = 4

// Summary counts the outcome of an ingestion pass.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Deleted   int
	Chunks    int
	Duration  time.Duration
}

// Updater is the only writer to the index. Work on one path is
// serialized; different paths may process concurrently.
type Updater struct {
	src      source.Source
	splitter *chunk.Splitter
	gen      *embed.Generator
	idx      *store.Index
	logger   *slog.Logger

	workers int

	mu        sync.Mutex
	pathLocks map[string]*sync.Mutex
}

// NewUpdater wires the pipeline stages together.
func NewUpdater(src source.Source, splitter *chunk.Splitter, gen *embed.Generator, idx *store.Index, workers int, logger *slog.Logger) *Updater {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		src:       src,
		splitter:  splitter,
		gen:       gen,
		idx:       idx,
		logger:    logger,
		workers:   workers,
		pathLocks: make(map[string]*sync.Mutex),
	}
}

// lockPath returns the mutex serializing work on one path.
func (u *Updater) lockPath(path string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		u.pathLocks[path] = l
	}
	return l
}

// ProcessPath re-ingests one document: read, extract, chunk, embed,
// then delete the path's old chunks before upserting the new ones.
// The delete-before-upsert order prevents stale chunks surviving a
// content shrink. A vanished document is treated as a deletion.
func (u *Updater) ProcessPath(ctx context.Context, path string) error {
	l := u.lockPath(path)
	l.Lock()
	defer l.Unlock()

	doc, err := u.src.Get(ctx, path)
	if err != nil {
		if verrors.CodeOf(err) == verrors.ErrCodeSourceNotFound {
			return u.deletePath(ctx, path)
		}
		return err
	}

	content, dm := meta.Extract(path, doc.Text)
	dm.Modified = doc.LastModified

	pieces, err := u.splitter.Split(ctx, path, content, dm)
	if err != nil {
		return err
	}

	chunks := make([]chunk.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, ch := range pieces {
		chunks[i] = *ch
		texts[i] = ch.Text
	}
	vectors, err := u.gen.Generate(ctx, texts)
	if err != nil {
		return err
	}

	if _, err := u.idx.DeleteBySource(ctx, path); err != nil {
		return err
	}
	if len(chunks) == 0 {
		if err := u.idx.RecordSource(ctx, path, doc.LastModified); err != nil {
			return err
		}
	} else if err := u.idx.Upsert(ctx, chunks, vectors); err != nil {
		return err
	}

	u.logger.Info("document indexed", "path", path, "chunks", len(chunks))
	return nil
}

func (u *Updater) deletePath(ctx context.Context, path string) error {
	removed, err := u.idx.DeleteBySource(ctx, path)
	if err != nil {
		return err
	}
	if removed > 0 {
		u.logger.Info("document removed from index", "path", path, "chunks", removed)
	}
	return nil
}

// HandleEvent is the debounce handler: change events re-ingest the
// path, delete events remove it. A failure is logged and isolated to
// its path.
func (u *Updater) HandleEvent(ctx context.Context, ev watcher.FileEvent) {
	var err error
	switch ev.Operation {
	case watcher.OpDelete:
		l := u.lockPath(ev.Path)
		l.Lock()
		err = u.deletePath(ctx, ev.Path)
		l.Unlock()
	default:
		err = u.ProcessPath(ctx, ev.Path)
	}
	if err != nil {
		if verrors.IsFatal(err) {
			u.logger.Error("fatal ingestion error", "path", ev.Path, "error", err)
			return
		}
		u.logger.Warn("ingestion failed for path", "path", ev.Path, "error", err)
		return
	}
	if saveErr := u.idx.Save(); saveErr != nil {
		u.logger.Warn("index save failed", "error", saveErr)
	}
}

// Reconcile compares source modification times against the index's
// per-source records: new and changed paths are reprocessed, vanished
// paths deleted, unchanged paths skipped. Used at startup to catch
// changes missed while offline, and by the index command for full
// ingestion runs.
func (u *Updater) Reconcile(ctx context.Context) (Summary, error) {
	start := time.Now()

	docs, err := u.src.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	known, err := u.idx.Sources(ctx)
	if err != nil {
		return Summary{}, err
	}

	var todo []string
	seen := make(map[string]bool, len(docs))
	var summary Summary
	for _, d := range docs {
		seen[d.Path] = true
		if recorded, ok := known[d.Path]; ok && !d.LastModified.After(recorded) {
			summary.Skipped++
			continue
		}
		todo = append(todo, d.Path)
	}

	pool, err := ants.NewPool(u.workers)
	if err != nil {
		return Summary{}, fmt.Errorf("create ingestion pool: %w", err)
	}
	defer pool.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup
	var fatal error

	for _, path := range todo {
		path := path
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			mu.Lock()
			abort := fatal != nil
			mu.Unlock()
			if abort || ctx.Err() != nil {
				return
			}

			err := u.ProcessPath(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Succeeded++
			case verrors.IsFatal(err):
				if fatal == nil {
					fatal = err
				}
			default:
				summary.Failed++
				u.logger.Warn("ingestion failed for path", "path", path, "error", err)
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			summary.Failed++
			mu.Unlock()
		}
	}
	wg.Wait()

	if fatal != nil {
		return summary, fatal
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	// Paths the source no longer reports are removed.
	for path := range known {
		if seen[path] {
			continue
		}
		if err := u.deletePath(ctx, path); err != nil {
			summary.Failed++
			u.logger.Warn("delete failed for vanished path", "path", path, "error", err)
			continue
		}
		summary.Deleted++
	}

	if err := u.idx.Save(); err != nil {
		return summary, err
	}

	stats, err := u.idx.Stats(ctx)
	if err == nil {
		summary.Chunks = stats.Chunks
	}
	summary.Duration = time.Since(start)

	u.logger.Info("reconciliation complete",
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"deleted", summary.Deleted,
		"duration", summary.Duration)
	return summary, nil
}
