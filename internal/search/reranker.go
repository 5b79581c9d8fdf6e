package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// CrossEncoder scores (query, text) pairs with a pairwise relevance
// model. Scores are comparable within one call but carry no absolute
// scale; callers normalize before fusing.
type CrossEncoder interface {
	// Score returns one relevance score per text, in input order.
	Score(ctx context.Context, query string, texts []string) ([]float64, error)

	// Available reports whether the backing model is reachable.
	Available(ctx context.Context) bool

	Close() error
}

// NoOpCrossEncoder scores texts by their input position. Used when
// reranking is disabled or the model is unreachable; the fused
// ordering then degrades to the retrieval ordering.
type NoOpCrossEncoder struct{}

var _ CrossEncoder = (*NoOpCrossEncoder)(nil)

// Score assigns decreasing scores so input order is preserved.
func (NoOpCrossEncoder) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i := range texts {
		scores[i] = 1.0 - float64(i)*0.01
	}
	return scores, nil
}

func (NoOpCrossEncoder) Available(_ context.Context) bool { return true }

func (NoOpCrossEncoder) Close() error { return nil }

// PairScorer scores a single (query, text) pair.
type PairScorer func(ctx context.Context, query, text string) (float64, error)

// ParallelCrossEncoder fans pair scoring out across a worker pool,
// for backends that only score one pair per call.
type ParallelCrossEncoder struct {
	scorer  PairScorer
	pool    *ants.Pool
	ownPool bool

	// inner is the wrapped encoder when built via Pairwise; it owns
	// availability and is closed with the pool.
	inner CrossEncoder
}

var _ CrossEncoder = (*ParallelCrossEncoder)(nil)

// NewParallelCrossEncoder creates an encoder running scorer on
// workers goroutines.
func NewParallelCrossEncoder(scorer PairScorer, workers int) (*ParallelCrossEncoder, error) {
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &ParallelCrossEncoder{scorer: scorer, pool: pool, ownPool: true}, nil
}

// Pairwise wraps enc so every document is scored in its own call,
// fanned out across workers. For rerank servers that reject batched
// documents.
func Pairwise(enc CrossEncoder, workers int) (*ParallelCrossEncoder, error) {
	p, err := NewParallelCrossEncoder(func(ctx context.Context, query, text string) (float64, error) {
		scores, err := enc.Score(ctx, query, []string{text})
		if err != nil {
			return 0, err
		}
		if len(scores) != 1 {
			return 0, fmt.Errorf("pairwise scoring returned %d scores", len(scores))
		}
		return scores[0], nil
	}, workers)
	if err != nil {
		return nil, err
	}
	p.inner = enc
	return p, nil
}

// Score scores all pairs concurrently, preserving input order. The
// first scoring error wins and cancels nothing already in flight;
// remaining workers finish their pair and discard the result.
func (p *ParallelCrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, text := range texts {
		i, text := i, text
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			score, err := p.scorer(ctx, query, text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			scores[i] = score
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (p *ParallelCrossEncoder) Available(ctx context.Context) bool {
	if p.pool.IsClosed() {
		return false
	}
	if p.inner != nil {
		return p.inner.Available(ctx)
	}
	return true
}

func (p *ParallelCrossEncoder) Close() error {
	if p.ownPool {
		p.pool.Release()
	}
	if p.inner != nil {
		return p.inner.Close()
	}
	return nil
}
