// Package store persists the three index artifacts: the HNSW vector
// graph, the bleve keyword index, and the sqlite chunk catalog. The
// composed Index keeps them consistent under concurrent updates.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/vaultscope/vaultscope/internal/chunk"
)

// Default HNSW parameters, matching coder/hnsw recommendations.
const (
	DefaultM        = 16
	DefaultEfSearch = 20
)

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	Dimensions int
	M          int
	EfSearch   int
	Metric     string
}

func (c VectorStoreConfig) withDefaults() VectorStoreConfig {
	if c.Metric == "" {
		c.Metric = "cos"
	}
	if c.M == 0 {
		c.M = DefaultM
	}
	if c.EfSearch == 0 {
		c.EfSearch = DefaultEfSearch
	}
	return c
}

// VectorResult is a nearest-neighbor hit from the vector store.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// KeywordResult is a BM25 hit from the keyword index.
type KeywordResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// VectorStore is the ANN index over chunk embeddings.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Filter restricts matches by chunk metadata. Zero-value fields are
// inactive.
type Filter struct {
	// Tag requires the chunk to carry the tag (case-insensitive).
	Tag string

	// PathPrefix requires the chunk's source path to start with the
	// prefix.
	PathPrefix string

	// ModifiedAfter requires the source document's modification time
	// to be strictly later.
	ModifiedAfter time.Time

	// Text requires the chunk to match the keyword query. The index
	// resolves it against the keyword index during candidate
	// collection; Matches ignores it.
	Text string
}

// IsZero reports whether no filter field is active.
func (f *Filter) IsZero() bool {
	return f == nil || (f.Tag == "" && f.PathPrefix == "" && f.ModifiedAfter.IsZero() && f.Text == "")
}

// Matches reports whether a chunk satisfies every active
// metadata field. The Text predicate needs the keyword index and is
// applied by Index.Query instead.
func (f *Filter) Matches(c *chunk.Chunk) bool {
	if f.IsZero() {
		return true
	}
	if f.Tag != "" {
		want := strings.ToLower(f.Tag)
		found := false
		for _, t := range c.Tags {
			if t == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PathPrefix != "" && !strings.HasPrefix(c.Path, f.PathPrefix) {
		return false
	}
	if !f.ModifiedAfter.IsZero() && !c.Modified.After(f.ModifiedAfter) {
		return false
	}
	return true
}

// Match pairs a chunk with its retrieval score.
type Match struct {
	Chunk chunk.Chunk
	Score float64

	// MatchedTerms holds keyword terms that hit, when the match came
	// from the keyword index.
	MatchedTerms []string
}
