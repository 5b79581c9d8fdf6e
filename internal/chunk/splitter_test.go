package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultscope/vaultscope/internal/meta"
	"github.com/vaultscope/vaultscope/internal/token"
)

func newTestSplitter(t *testing.T, opts Options) *Splitter {
	t.Helper()
	codec, err := token.NewCodec("")
	require.NoError(t, err)
	return NewSplitter(codec, opts)
}

func TestSplit_EmptyDocument(t *testing.T) {
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "a.md", "   \n\n  ", meta.DocumentMeta{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_HeadingSections(t *testing.T) {
	content := `# Alpha

Alpha body.

## Beta

Beta body.

# Gamma

Gamma body.
`
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "notes/doc.md", content, meta.DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Alpha", chunks[0].Heading)
	assert.Equal(t, "Beta", chunks[1].Heading)
	assert.Equal(t, "Alpha > Beta", chunks[1].HeadingPath)
	assert.Equal(t, "Gamma", chunks[2].Heading)

	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "notes/doc.md", c.Path)
	}
}

func TestSplit_PreambleBeforeFirstHeading(t *testing.T) {
	content := "Intro paragraph without heading.\n\n# First\n\nbody\n"
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "p.md", content, meta.DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Empty(t, chunks[0].Heading)
	assert.Contains(t, chunks[0].Text, "Intro paragraph")
	assert.Equal(t, "First", chunks[1].Heading)
}

func TestSplit_EmptySectionYieldsNoChunk(t *testing.T) {
	content := "# Empty\n\n# Full\n\ncontent\n"
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "e.md", content, meta.DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Full", chunks[0].Heading)
}

func TestSplit_TokenBoundInvariant(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Big Section\n\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, "Sentence number %d about retrieval engines and indexing. ", i)
	}

	s := newTestSplitter(t, Options{MaxTokens: 128, OverlapTokens: 16})

	chunks, err := s.Split(context.Background(), "big.md", sb.String(), meta.DocumentMeta{})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		if !c.Oversize {
			assert.LessOrEqual(t, c.TokenCount, 128, "chunk %d", c.Ordinal)
		}
	}
}

func TestSplit_WindowOverlap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# W\n\n")
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "word%d ", i)
	}

	const maxTokens, overlap = 100, 20
	codec, err := token.NewCodec("")
	require.NoError(t, err)
	s := NewSplitter(codec, Options{MaxTokens: maxTokens, OverlapTokens: overlap})

	chunks, err := s.Split(context.Background(), "w.md", sb.String(), meta.DocumentMeta{})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	// Each window starts (MaxTokens - Overlap) tokens after the previous
	// one, so the opening of chunk i is contained in the tail of chunk i-1.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i].Text
		if len(head) > 24 {
			head = head[:24]
		}
		assert.Contains(t, chunks[i-1].Text, head,
			"chunk %d should overlap with chunk %d", i, i-1)
	}
}

func TestSplit_SubordinateHeadingsBeforeWindow(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Top\n\n")
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&sb, "#### Sub %d\n\n", i)
		for j := 0; j < 60; j++ {
			fmt.Fprintf(&sb, "filler sentence %d-%d about notes. ", i, j)
		}
		sb.WriteString("\n\n")
	}

	s := newTestSplitter(t, Options{MaxTokens: 256, OverlapTokens: 32})

	chunks, err := s.Split(context.Background(), "sub.md", sb.String(), meta.DocumentMeta{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 4)

	headings := make(map[string]bool)
	for _, c := range chunks {
		headings[c.Heading] = true
	}
	assert.True(t, headings["Sub 0"], "subordinate headings should label their chunks")
}

func TestSplit_OversizeFenceFlagged(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Code\n\nintro text\n\n```\n")
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "const value%d = %d\n", i, i)
	}
	sb.WriteString("```\n")

	s := newTestSplitter(t, Options{MaxTokens: 128, OverlapTokens: 16})

	chunks, err := s.Split(context.Background(), "code.md", sb.String(), meta.DocumentMeta{})
	require.NoError(t, err)

	var oversize *Chunk
	for _, c := range chunks {
		if c.Oversize {
			oversize = c
		}
	}
	require.NotNil(t, oversize, "indivisible fenced block must be flagged")
	assert.Greater(t, oversize.TokenCount, 128)
	assert.Contains(t, oversize.Text, "const value0")
}

func TestSplit_Idempotent(t *testing.T) {
	content := "# One\n\nalpha beta gamma\n\n# Two\n\ndelta epsilon\n"
	s := newTestSplitter(t, Options{})

	first, err := s.Split(context.Background(), "i.md", content, meta.DocumentMeta{})
	require.NoError(t, err)
	second, err := s.Split(context.Background(), "i.md", content, meta.DocumentMeta{})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestSplit_DistinctIDs(t *testing.T) {
	content := "# Same\n\nbody one\n\n# Same\n\nbody two\n"
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "d.md", content, meta.DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestSplit_MetadataInherited(t *testing.T) {
	dm := meta.DocumentMeta{
		Tags:        []string{"philosophy"},
		Frontmatter: map[string]string{"title": "T"},
	}
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "m.md", "# H\n\nbody\n", dm)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"philosophy"}, chunks[0].Tags)
	assert.Equal(t, "T", chunks[0].Frontmatter["title"])
}

func TestSplit_HeadingInsideFenceIgnored(t *testing.T) {
	content := "# Real\n\n```\n# not a heading\n```\n\nmore text\n"
	s := newTestSplitter(t, Options{})

	chunks, err := s.Split(context.Background(), "f.md", content, meta.DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Real", chunks[0].Heading)
	assert.Contains(t, chunks[0].Text, "# not a heading")
}
