package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/vaultscope/vaultscope/internal/chunk"
	"github.com/vaultscope/vaultscope/internal/config"
	"github.com/vaultscope/vaultscope/internal/embed"
	indexer "github.com/vaultscope/vaultscope/internal/index"
	"github.com/vaultscope/vaultscope/internal/logging"
	"github.com/vaultscope/vaultscope/internal/search"
	"github.com/vaultscope/vaultscope/internal/source"
	"github.com/vaultscope/vaultscope/internal/store"
	"github.com/vaultscope/vaultscope/internal/token"
)

// loadConfig resolves the effective configuration from file, env, and
// command-line flags.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.vaultPath != "" {
		// Re-derive the data dir only when it still points at the old
		// vault-local default.
		derived := filepath.Join(cfg.Vault.Path, ".vaultscope")
		if cfg.Vault.DataDir == derived {
			cfg.Vault.DataDir = filepath.Join(f.vaultPath, ".vaultscope")
		}
		cfg.Vault.Path = f.vaultPath
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	return cfg, nil
}

// setupLogging configures slog per the loaded config. Logs always go
// to a rotating file under the data dir unless the config names
// another path; stderr controls whether log lines are mirrored there,
// so search output stays clean when it is off.
func setupLogging(cfg *config.Config, stderr bool) (*slog.Logger, func(), error) {
	filePath := cfg.Logging.File
	if filePath == "" {
		filePath = logging.DefaultLogPath(cfg.Vault.DataDir)
	}
	return logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		FilePath:      filePath,
		WriteToStderr: stderr,
	})
}

// newEmbedder builds the configured embedding provider, wrapped in an
// LRU cache when caching is enabled.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Embedding.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	default:
		ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       cfg.Embedding.Host,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = ollama
	}

	if cfg.Embedding.CacheSize > 0 {
		return embed.NewCachedEmbedder(inner, cfg.Embedding.CacheSize), nil
	}
	return inner, nil
}

// app bundles the long-lived components a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder embed.Embedder
	idx      *store.Index

	logCleanup func()
}

// buildApp loads config, sets up logging, and opens the embedder and
// index. Callers must Close the returned app.
func buildApp(ctx context.Context, flags *rootFlags, logToStderr bool) (*app, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCleanup, err := setupLogging(cfg, logToStderr)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		logCleanup()
		return nil, err
	}

	idx, err := store.OpenIndex(store.IndexConfig{
		Dir:        cfg.Vault.DataDir,
		Dimensions: embedder.Dimensions(),
	}, logger)
	if err != nil {
		_ = embedder.Close()
		logCleanup()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		embedder:   embedder,
		idx:        idx,
		logCleanup: logCleanup,
	}, nil
}

func (a *app) Close() error {
	err := a.idx.Close()
	if cerr := a.embedder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
	return err
}

// newUpdater wires the ingestion pipeline. The embedder self-check
// runs first so a degenerate model aborts before any writes.
func (a *app) newUpdater(ctx context.Context) (*indexer.Updater, error) {
	gen, err := embed.NewGenerator(a.embedder, embed.GeneratorConfig{
		TokenBudget: a.cfg.Embedding.TokenBudget,
		Encoding:    a.cfg.Chunking.Encoding,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	if err := gen.SelfCheck(ctx); err != nil {
		return nil, err
	}

	src, err := source.NewFSSource(a.cfg.Vault.Path, source.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(a.cfg.Chunking.Encoding)
	if err != nil {
		return nil, err
	}
	splitter := chunk.NewSplitter(codec, chunk.Options{
		MaxTokens:     a.cfg.Chunking.MaxTokens,
		OverlapTokens: a.cfg.Chunking.OverlapTokens,
	})

	return indexer.NewUpdater(src, splitter, gen, a.idx, a.cfg.Watcher.Workers, a.logger), nil
}

// newEngine wires the search pipeline. Reranking is enabled only when
// a cross-encoder endpoint is configured.
func (a *app) newEngine(ctx context.Context) (*search.Engine, error) {
	var encoder search.CrossEncoder
	if a.cfg.Search.RerankEndpoint != "" {
		httpEnc, err := search.NewHTTPCrossEncoder(ctx, search.HTTPEncoderConfig{
			Endpoint: a.cfg.Search.RerankEndpoint,
			Model:    a.cfg.Search.RerankModel,
		})
		if err != nil {
			a.logger.Warn("cross-encoder unavailable, reranking disabled",
				slog.String("endpoint", a.cfg.Search.RerankEndpoint),
				slog.String("error", err.Error()))
		} else if a.cfg.Search.RerankPairwise {
			pw, err := search.Pairwise(httpEnc, a.cfg.Search.RerankWorkers)
			if err != nil {
				_ = httpEnc.Close()
				return nil, err
			}
			encoder = pw
		} else {
			encoder = httpEnc
		}
	}

	opts := search.Options{
		PoolMultiplier: a.cfg.Search.PoolMultiplier,
		RerankWeight:   a.cfg.Search.RerankWeight,
		RRFConstant:    a.cfg.Search.RRFConstant,
	}
	return search.NewEngine(a.idx, a.embedder, encoder, opts, a.logger), nil
}
