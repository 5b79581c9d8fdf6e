package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

func writeVaultFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func fastRetry() verrors.RetryConfig {
	return verrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestFSSourceList(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "notes/a.md", "# A")
	writeVaultFile(t, root, "notes/deep/b.markdown", "# B")
	writeVaultFile(t, root, "notes/ignore.txt", "not markdown")
	writeVaultFile(t, root, ".obsidian/config.md", "hidden dir")
	writeVaultFile(t, root, "notes/.draft.md", "hidden file")

	src, err := NewFSSource(root)
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	paths := []string{docs[0].Path, docs[1].Path}
	assert.Contains(t, paths, "notes/a.md")
	assert.Contains(t, paths, "notes/deep/b.markdown")
	for _, d := range docs {
		assert.False(t, d.LastModified.IsZero())
		assert.Positive(t, d.Size)
	}
}

func TestFSSourceGet(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "notes/a.md", "# Heading\n\nBody text.")

	src, err := NewFSSource(root, WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	doc, err := src.Get(context.Background(), "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", doc.Path)
	assert.Equal(t, "# Heading\n\nBody text.", doc.Text)
	assert.Equal(t, int64(len(doc.Text)), doc.Size)
}

func TestFSSourceGetMissing(t *testing.T) {
	src, err := NewFSSource(t.TempDir(), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = src.Get(context.Background(), "nope.md")
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeSourceNotFound, verrors.CodeOf(err))
}

func TestNewFSSourceMissingRoot(t *testing.T) {
	_, err := NewFSSource(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeSourceNotFound, verrors.CodeOf(err))
}

func TestNewFSSourceFileRoot(t *testing.T) {
	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "x")

	_, err := NewFSSource(filepath.Join(root, "a.md"))
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeConfigInvalid, verrors.CodeOf(err))
}

func TestFSSourceEmptyVault(t *testing.T) {
	src, err := NewFSSource(t.TempDir())
	require.NoError(t, err)

	docs, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
