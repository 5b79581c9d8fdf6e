// Package chunk splits Markdown documents into structure-respecting,
// token-bounded chunks. Sections are cut at headings first; oversized
// sections fall back to subordinate headings and finally to a sliding
// token window with overlap.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunking defaults.
const (
	// DefaultMaxTokens is the maximum tokens per chunk.
	DefaultMaxTokens = 512

	// DefaultOverlapTokens is the token overlap between adjacent
	// window-split chunks (~12.5% of DefaultMaxTokens).
	DefaultOverlapTokens = 64
)

// Chunk is a contiguous, size-bounded span of one document's text, the
// atomic unit indexed and retrieved.
type Chunk struct {
	// ID is derived from (Path, HeadingPath, Ordinal); re-chunking an
	// unchanged document reproduces identical IDs.
	ID string

	// Path is the owning document path, relative to the vault root.
	Path string

	// Heading is the nearest section heading text, empty for preamble.
	Heading string

	// HeadingPath is the heading hierarchy, e.g. "Guide > Setup".
	HeadingPath string

	// Ordinal is the chunk index within the document.
	Ordinal int

	// Text is the chunk content.
	Text string

	// TokenCount is measured with the embedding model's tokenizer.
	TokenCount int

	WordCount int
	CharCount int

	// Oversize marks a single indivisible unit (fenced block) that
	// unavoidably exceeds the configured maximum.
	Oversize bool

	// Inherited document metadata.
	Tags        []string
	Frontmatter map[string]string
	Modified    time.Time
}

// Options configures the splitter.
type Options struct {
	// MaxTokens is the maximum tokens per chunk (default 512).
	MaxTokens int

	// OverlapTokens is the overlap between window-split chunks
	// (default 64). Must be smaller than MaxTokens.
	OverlapTokens int
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = DefaultOverlapTokens
	}
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 4
	}
	return o
}

// ChunkID computes the deterministic identity for a chunk.
func ChunkID(path, headingPath string, ordinal int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%d", path, headingPath, ordinal))
	return hex.EncodeToString(sum[:])[:16]
}
