// Package token provides model-accurate token counting and token-stream
// slicing. Chunk boundaries must be measured with the same tokenization
// scheme the embedding model uses, so counting is backed by a real BPE
// codec rather than a word-count approximation.
package token

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
// cl100k_base matches the tokenizers used by current embedding models.
const DefaultEncoding = "cl100k_base"

// Codec counts tokens and slices text on token boundaries.
type Codec interface {
	// Count returns the number of tokens in text.
	Count(text string) int

	// Encode converts text to its token stream.
	Encode(text string) []int

	// Decode converts a token stream back to text.
	Decode(tokens []int) string
}

// BPECodec implements Codec using tiktoken BPE encodings.
type BPECodec struct {
	name string
	tk   *tiktoken.Tiktoken
}

var _ Codec = (*BPECodec)(nil)

var (
	codecMu    sync.Mutex
	codecCache = make(map[string]*BPECodec)
)

// NewCodec returns a codec for the given encoding name.
// Codecs are cached per encoding since BPE table construction is expensive.
func NewCodec(name string) (*BPECodec, error) {
	if name == "" {
		name = DefaultEncoding
	}

	codecMu.Lock()
	defer codecMu.Unlock()

	if c, ok := codecCache[name]; ok {
		return c, nil
	}

	tk, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer encoding %q: %w", name, err)
	}

	c := &BPECodec{name: name, tk: tk}
	codecCache[name] = c
	return c, nil
}

// Name returns the encoding name.
func (c *BPECodec) Name() string {
	return c.name
}

// Count returns the number of tokens in text.
func (c *BPECodec) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tk.Encode(text, nil, nil))
}

// Encode converts text to its token stream.
func (c *BPECodec) Encode(text string) []int {
	if text == "" {
		return []int{}
	}
	return c.tk.Encode(text, nil, nil)
}

// Decode converts a token stream back to text.
func (c *BPECodec) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}
	return c.tk.Decode(tokens)
}
