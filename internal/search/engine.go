package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaultscope/vaultscope/internal/embed"
	verrors "github.com/vaultscope/vaultscope/internal/errors"
	"github.com/vaultscope/vaultscope/internal/store"
)

// Engine runs the full query pipeline: embed the query, over-fetch
// hybrid candidates from the index, then re-rank.
type Engine struct {
	index    *store.Index
	embedder embed.Embedder
	encoder  CrossEncoder
	opts     Options
	logger   *slog.Logger
}

// NewEngine creates an Engine. A nil encoder disables reranking.
func NewEngine(index *store.Index, embedder embed.Embedder, encoder CrossEncoder, opts Options, logger *slog.Logger) *Engine {
	if encoder == nil {
		encoder = NoOpCrossEncoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		index:    index,
		embedder: embedder,
		encoder:  encoder,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Search returns the top n chunks for a free-text query, optionally
// restricted by a metadata filter. Embedding and index failures are
// returned as typed errors; no partial result is returned silently.
func (e *Engine) Search(ctx context.Context, query string, n int, filter *store.Filter) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, verrors.New(verrors.ErrCodeQueryInvalid, "query is empty", nil)
	}
	if n <= 0 {
		return nil, verrors.New(verrors.ErrCodeQueryInvalid, "result count must be positive", nil)
	}

	start := time.Now()
	pool := n * e.opts.PoolMultiplier

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeEmbeddingFailed, "query embedding failed", err)
	}

	// Vector and keyword retrieval run concurrently.
	var vecMatches, kwMatches []store.Match
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := e.index.Query(gctx, queryVec, pool, filter)
		if err != nil {
			return err
		}
		vecMatches = m
		return nil
	})
	g.Go(func() error {
		m, err := e.index.Keyword(gctx, query, pool, filter)
		if err != nil {
			return err
		}
		kwMatches = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := fuseCandidates(vecMatches, kwMatches, e.opts.RRFConstant)
	if len(candidates) > pool {
		candidates = candidates[:pool]
	}

	reranked := e.rerank(ctx, query, candidates, n)

	if len(reranked) > n {
		reranked = reranked[:n]
	}
	results := make([]Result, len(reranked))
	for i, c := range reranked {
		r := resultFromMatch(c.match)
		r.Similarity = c.vecScore
		r.RerankScore = c.fused
		results[i] = r
	}

	e.logger.Debug("search completed",
		"query_len", len(query),
		"n", n,
		"candidates", len(candidates),
		"duration", time.Since(start))
	return results, nil
}

// rerank scores candidates with the cross-encoder and fuses against
// vector similarity. Pools of n or fewer skip the model entirely. A
// scoring failure degrades to the fused retrieval order with a
// warning rather than failing the query.
func (e *Engine) rerank(ctx context.Context, query string, candidates []candidate, n int) []candidate {
	if len(candidates) <= n {
		return candidates
	}
	if !e.encoder.Available(ctx) {
		e.logger.Warn("cross-encoder unavailable, returning retrieval order")
		return candidates
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.match.Chunk.Text
	}

	scores, err := e.encoder.Score(ctx, query, texts)
	if err != nil {
		e.logger.Warn("cross-encoder scoring failed, returning retrieval order", "error", err)
		return candidates
	}

	fuseRerankScores(candidates, scores, e.opts.RerankWeight)
	return candidates
}

// Close releases the engine's model clients.
func (e *Engine) Close() error {
	err := e.encoder.Close()
	if cerr := e.embedder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
