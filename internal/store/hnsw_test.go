package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

func newTestStore(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(VectorStoreConfig{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestHNSWAddAndSearch(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{unitVec(4, 0), unitVec(4, 1), unitVec(4, 2)}))

	results, err := s.Search(ctx, unitVec(4, 0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWUpsertReplaces(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{unitVec(4, 0)}))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{unitVec(4, 3)}))

	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 1, s.Orphans())

	results, err := s.Search(ctx, unitVec(4, 3), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWDeleteExcludesFromResults(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{unitVec(4, 0), unitVec(4, 1)}))
	require.NoError(t, s.Delete(ctx, []string{"a"}))

	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, unitVec(4, 0), 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestHNSWCompactReclaimsOrphans(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{unitVec(4, 0), unitVec(4, 1), unitVec(4, 2)}))
	for pass := 0; pass < 3; pass++ {
		require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{unitVec(4, 0)}))
	}
	require.NoError(t, s.Delete(ctx, []string{"c"}))
	require.Equal(t, 4, s.Orphans())
	require.Equal(t, 6, s.Total())

	reclaimed, err := s.Compact()
	require.NoError(t, err)
	assert.Equal(t, 4, reclaimed)
	assert.Zero(t, s.Orphans())
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 2, s.Total())

	results, err := s.Search(ctx, unitVec(4, 1), 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "b", results[0].ID)
	for _, r := range results {
		assert.NotEqual(t, "c", r.ID)
	}

	// Nothing to reclaim the second time.
	reclaimed, err = s.Compact()
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	err := s.Add(ctx, []string{"a"}, [][]float32{unitVec(8, 0)})
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.CodeOf(err))

	_, err = s.Search(ctx, unitVec(8, 0), 1)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.CodeOf(err))
}

func TestHNSWEmptySearch(t *testing.T) {
	s := newTestStore(t, 4)

	results, err := s.Search(context.Background(), unitVec(4, 0), 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, VectorFileName)
	ctx := context.Background()

	s := newTestStore(t, 4)
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{unitVec(4, 0), unitVec(4, 1)}))
	require.NoError(t, s.Save(path))

	loaded := newTestStore(t, 4)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, unitVec(4, 1), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	dims, err := StoredDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)
}

func TestStoredDimensionsFreshStart(t *testing.T) {
	dims, err := StoredDimensions(filepath.Join(t.TempDir(), VectorFileName))
	require.NoError(t, err)
	assert.Zero(t, dims)
}
