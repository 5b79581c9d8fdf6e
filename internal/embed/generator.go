package embed

import (
	"context"
	"fmt"
	"log/slog"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
	"github.com/vaultscope/vaultscope/internal/token"
)

// Self-check probe texts. They describe unrelated topics so a healthy
// model must place them apart in vector space.
const (
	probeTextA = "Quarterly revenue grew twelve percent driven by subscription renewals in the enterprise segment."
	probeTextB = "The hiking trail climbs through dense pine forest before reaching the alpine lake at dawn."
)

// distinctnessCeiling is the maximum allowed cosine similarity between
// the two probe vectors. A model that returns near-identical vectors
// for distinct inputs is misconfigured and would silently destroy
// retrieval quality.
const distinctnessCeiling = 0.99

// GeneratorConfig configures batch embedding generation.
type GeneratorConfig struct {
	// TokenBudget is the maximum cumulative token count per batch.
	TokenBudget int

	// Encoding names the tokenizer used for budget accounting.
	Encoding string
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.Encoding == "" {
		c.Encoding = token.DefaultEncoding
	}
	return c
}

// Generator turns chunk texts into embedding vectors in token-budgeted
// batches. Batching keeps request payloads bounded while amortizing
// per-request overhead across many chunks.
type Generator struct {
	embedder Embedder
	codec    token.Codec
	config   GeneratorConfig
	logger   *slog.Logger
}

// NewGenerator creates a Generator on top of an embedder.
func NewGenerator(embedder Embedder, config GeneratorConfig, logger *slog.Logger) (*Generator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	config = config.withDefaults()

	codec, err := token.NewCodec(config.Encoding)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid,
			fmt.Sprintf("tokenizer encoding %q unavailable", config.Encoding), err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator{
		embedder: embedder,
		codec:    codec,
		config:   config,
		logger:   logger,
	}, nil
}

// SelfCheck verifies the embedder produces distinct vectors for
// distinct texts and self-similar vectors for identical texts. A
// failure is fatal: every vector the model would produce afterwards
// is suspect.
func (g *Generator) SelfCheck(ctx context.Context) error {
	vecs, err := g.embedder.EmbedBatch(ctx, []string{probeTextA, probeTextB, probeTextA})
	if err != nil {
		return verrors.New(verrors.ErrCodeEmbeddingFailed, "self-check embedding failed", err)
	}
	if len(vecs) != 3 {
		return verrors.IntegrityError(fmt.Sprintf("self-check returned %d vectors, expected 3", len(vecs)), nil)
	}

	cross := Cosine(vecs[0], vecs[1])
	self := Cosine(vecs[0], vecs[2])

	g.logger.Debug("embedding self-check",
		"model", g.embedder.ModelName(),
		"cross_similarity", cross,
		"self_similarity", self)

	if cross >= distinctnessCeiling {
		return verrors.IntegrityError(fmt.Sprintf(
			"model %s returned near-identical vectors for distinct texts (cosine %.4f)",
			g.embedder.ModelName(), cross), nil)
	}
	if self < distinctnessCeiling {
		return verrors.IntegrityError(fmt.Sprintf(
			"model %s is not deterministic for identical text (cosine %.4f)",
			g.embedder.ModelName(), self), nil)
	}
	return nil
}

// Batch is a contiguous run of input texts embedded in one request.
type Batch struct {
	Start  int
	Texts  []string
	Tokens int
}

// PlanBatches groups texts into batches whose cumulative token count
// stays within the budget. A single text over budget forms its own
// batch rather than being rejected.
func (g *Generator) PlanBatches(texts []string) []Batch {
	var batches []Batch
	var current Batch

	flush := func() {
		if len(current.Texts) > 0 {
			batches = append(batches, current)
		}
	}

	for i, text := range texts {
		count := g.codec.Count(text)
		if len(current.Texts) > 0 && current.Tokens+count > g.config.TokenBudget {
			flush()
			current = Batch{Start: i}
		}
		if len(current.Texts) == 0 {
			current.Start = i
		}
		current.Texts = append(current.Texts, text)
		current.Tokens += count
	}
	flush()
	return batches
}

// Generate embeds all texts, preserving input order across batches.
func (g *Generator) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	batches := g.PlanBatches(texts)

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs, err := g.embedder.EmbedBatch(ctx, batch.Texts)
		if err != nil {
			return nil, verrors.New(verrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("batch at offset %d failed", batch.Start), err)
		}
		if len(vecs) != len(batch.Texts) {
			return nil, verrors.IntegrityError(fmt.Sprintf(
				"batch at offset %d returned %d vectors for %d texts",
				batch.Start, len(vecs), len(batch.Texts)), nil)
		}
		copy(out[batch.Start:], vecs)
		g.logger.Debug("embedded batch",
			"offset", batch.Start,
			"texts", len(batch.Texts),
			"tokens", batch.Tokens)
	}
	return out, nil
}

// Dimensions reports the underlying embedder's dimension.
func (g *Generator) Dimensions() int {
	return g.embedder.Dimensions()
}
