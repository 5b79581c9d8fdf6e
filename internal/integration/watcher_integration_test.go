package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultscope/vaultscope/internal/watcher"
)

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func (p *pipeline) chunkCount(t *testing.T) int {
	t.Helper()
	stats, err := p.idx.Stats(context.Background())
	require.NoError(t, err)
	return stats.Chunks
}

func TestWatch_CreateEditDelete(t *testing.T) {
	p := newPipeline(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watcher.NewFSWatcher(p.root, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	deb := watcher.NewDebouncer(100*time.Millisecond, p.updater.HandleEvent, nil)
	done := make(chan struct{})
	go func() {
		deb.Run(ctx, w.Events())
		close(done)
	}()

	p.write(t, "journal.md", "# Journal\n\nStarted reading about beekeeping today.\n")
	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return p.chunkCount(t) > 0
	}), "created note never reached the index")

	results, err := p.engine.Search(ctx, "reading about beekeeping", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "journal.md", results[0].Path)

	p.write(t, "journal.md", "# Journal\n\nSwitched to notes on fermentation instead.\n")
	require.True(t, waitFor(t, 5*time.Second, func() bool {
		rs, err := p.idx.Keyword(ctx, "fermentation", 3, nil)
		return err == nil && len(rs) > 0
	}), "edit never reached the index")

	stale, err := p.idx.Keyword(ctx, "beekeeping", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, stale)

	require.NoError(t, os.Remove(filepath.Join(p.root, "journal.md")))
	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return p.chunkCount(t) == 0
	}), "delete never reached the index")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer did not stop on context cancel")
	}
}

func TestWatch_IgnoresNonMarkdownAndHidden(t *testing.T) {
	p := newPipeline(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watcher.NewFSWatcher(p.root, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	deb := watcher.NewDebouncer(50*time.Millisecond, p.updater.HandleEvent, nil)
	go deb.Run(ctx, w.Events())

	p.write(t, "assets.bin", "not a note")
	p.write(t, ".obsidian/workspace.md", "# hidden state")
	p.write(t, "real.md", "# Real\n\nOnly this one should be indexed.\n")

	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return p.chunkCount(t) > 0
	}))

	sources, err := p.idx.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Contains(t, sources, "real.md")
}

func TestWatch_BurstOfEditsCoalesces(t *testing.T) {
	p := newPipeline(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watcher.NewFSWatcher(p.root, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	deb := watcher.NewDebouncer(150*time.Millisecond, p.updater.HandleEvent, nil)
	go deb.Run(ctx, w.Events())

	for i := 0; i < 5; i++ {
		p.write(t, "draft.md", "# Draft\n\nRevision pass with final wording here.\n")
		time.Sleep(20 * time.Millisecond)
	}

	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return p.chunkCount(t) > 0
	}))

	rs, err := p.idx.Keyword(ctx, "final wording", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, rs)
	assert.Equal(t, "draft.md", rs[0].Chunk.Path)

	stats, err := p.idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
}
