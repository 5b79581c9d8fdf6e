// Package search answers free-text queries over the index: it embeds
// the query, over-fetches hybrid candidates, and re-ranks them with a
// cross-encoder fused against vector similarity.
package search

import (
	"time"

	"github.com/vaultscope/vaultscope/internal/store"
)

// Defaults for the retrieval pipeline.
const (
	// DefaultPoolMultiplier sizes the rerank candidate pool as a
	// multiple of the requested result count.
	DefaultPoolMultiplier = 4

	// DefaultRerankWeight is the cross-encoder share of the fused
	// score. The cross-encoder models query-document relevance
	// directly, so it carries most of the weight.
	DefaultRerankWeight = 0.7

	// DefaultRRFConstant is the standard reciprocal-rank-fusion
	// smoothing parameter.
	DefaultRRFConstant = 60
)

// Options tunes the retrieval pipeline.
type Options struct {
	PoolMultiplier int
	RerankWeight   float64
	RRFConstant    int
}

func (o Options) withDefaults() Options {
	if o.PoolMultiplier <= 0 {
		o.PoolMultiplier = DefaultPoolMultiplier
	}
	if o.RerankWeight <= 0 || o.RerankWeight > 1 {
		o.RerankWeight = DefaultRerankWeight
	}
	if o.RRFConstant <= 0 {
		o.RRFConstant = DefaultRRFConstant
	}
	return o
}

// Result is one ranked hit returned to the caller.
type Result struct {
	ChunkID     string
	Text        string
	Path        string
	Heading     string
	HeadingPath string

	// Similarity is the vector cosine similarity in [0,1].
	Similarity float64

	// RerankScore is the fused relevance score when reranking ran,
	// otherwise 0.
	RerankScore float64

	Tags         []string
	Frontmatter  map[string]string
	Modified     time.Time
	MatchedTerms []string
}

func resultFromMatch(m store.Match) Result {
	return Result{
		ChunkID:      m.Chunk.ID,
		Text:         m.Chunk.Text,
		Path:         m.Chunk.Path,
		Heading:      m.Chunk.Heading,
		HeadingPath:  m.Chunk.HeadingPath,
		Similarity:   m.Score,
		Tags:         m.Chunk.Tags,
		Frontmatter:  m.Chunk.Frontmatter,
		Modified:     m.Chunk.Modified,
		MatchedTerms: m.MatchedTerms,
	}
}
