package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpCrossEncoderPreservesOrder(t *testing.T) {
	enc := NoOpCrossEncoder{}

	scores, err := enc.Score(context.Background(), "query", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
	assert.True(t, enc.Available(context.Background()))
}

func TestParallelCrossEncoderOrder(t *testing.T) {
	enc, err := NewParallelCrossEncoder(func(_ context.Context, query, text string) (float64, error) {
		return float64(len(text)), nil
	}, 4)
	require.NoError(t, err)
	defer enc.Close()

	texts := []string{"a", "bbb", "cc", "dddd"}
	scores, err := enc.Score(context.Background(), "q", texts)
	require.NoError(t, err)
	require.Len(t, scores, 4)
	for i, text := range texts {
		assert.InDelta(t, float64(len(text)), scores[i], 1e-9)
	}
}

func TestParallelCrossEncoderPropagatesError(t *testing.T) {
	scoreErr := errors.New("model blew up")
	enc, err := NewParallelCrossEncoder(func(_ context.Context, _, text string) (float64, error) {
		if strings.Contains(text, "bad") {
			return 0, scoreErr
		}
		return 1, nil
	}, 2)
	require.NoError(t, err)
	defer enc.Close()

	_, err = enc.Score(context.Background(), "q", []string{"ok", "bad", "ok"})
	require.Error(t, err)
	assert.ErrorIs(t, err, scoreErr)
}

// singlePairEncoder rejects batched documents, like rerank servers
// that only accept one document per request.
type singlePairEncoder struct {
	closed bool
}

func (s *singlePairEncoder) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	if len(texts) != 1 {
		return nil, errors.New("batched documents not supported")
	}
	return []float64{float64(len(texts[0]))}, nil
}
func (s *singlePairEncoder) Available(_ context.Context) bool { return !s.closed }
func (s *singlePairEncoder) Close() error {
	s.closed = true
	return nil
}

func TestPairwiseFansOutSingleDocumentCalls(t *testing.T) {
	inner := &singlePairEncoder{}
	enc, err := Pairwise(inner, 4)
	require.NoError(t, err)

	texts := []string{"a", "bbb", "cc", "dddd", "eeeee"}
	scores, err := enc.Score(context.Background(), "q", texts)
	require.NoError(t, err)
	require.Len(t, scores, 5)
	for i, text := range texts {
		assert.InDelta(t, float64(len(text)), scores[i], 1e-9)
	}

	assert.True(t, enc.Available(context.Background()))
	require.NoError(t, enc.Close())
	assert.True(t, inner.closed)
	assert.False(t, enc.Available(context.Background()))
}

func TestParallelCrossEncoderCancelledContext(t *testing.T) {
	enc, err := NewParallelCrossEncoder(func(_ context.Context, _, _ string) (float64, error) {
		return 1, nil
	}, 2)
	require.NoError(t, err)
	defer enc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = enc.Score(ctx, "q", []string{"a", "b"})
	assert.Error(t, err)
}
