// Package config loads the vaultscope configuration: YAML file first,
// environment overrides second, validation last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

// DefaultConfigName is looked up in the vault directory when no
// explicit config path is given.
const DefaultConfigName = ".vaultscope.yaml"

// Config is the complete vaultscope configuration.
type Config struct {
	Vault     VaultConfig     `yaml:"vault"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// VaultConfig locates the note vault and the index data directory.
type VaultConfig struct {
	// Path is the vault root directory.
	Path string `yaml:"path"`

	// DataDir holds the index artifacts. Defaults to
	// <vault>/.vaultscope.
	DataDir string `yaml:"data_dir"`
}

// ChunkingConfig tunes document splitting.
type ChunkingConfig struct {
	MaxTokens     int    `yaml:"max_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens"`
	Encoding      string `yaml:"encoding"`
}

// EmbeddingConfig selects and tunes the embedding model.
type EmbeddingConfig struct {
	// Provider is "ollama" or "static".
	Provider string `yaml:"provider"`

	Host        string        `yaml:"host"`
	Model       string        `yaml:"model"`
	Dimensions  int           `yaml:"dimensions"`
	TokenBudget int           `yaml:"token_budget"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheSize   int           `yaml:"cache_size"`
}

// SearchConfig tunes retrieval and reranking.
type SearchConfig struct {
	PoolMultiplier int     `yaml:"pool_multiplier"`
	RerankWeight   float64 `yaml:"rerank_weight"`
	RRFConstant    int     `yaml:"rrf_constant"`

	// RerankEndpoint is the cross-encoder server; empty disables
	// reranking.
	RerankEndpoint string `yaml:"rerank_endpoint"`
	RerankModel    string `yaml:"rerank_model"`

	// RerankPairwise scores one document per request across
	// RerankWorkers, for servers that reject batched documents.
	RerankPairwise bool `yaml:"rerank_pairwise"`
	RerankWorkers  int  `yaml:"rerank_workers"`
}

// WatcherConfig tunes change detection.
type WatcherConfig struct {
	Debounce time.Duration `yaml:"debounce"`

	// Polling switches to mod-time polling instead of fsnotify.
	Polling      bool          `yaml:"polling"`
	PollInterval time.Duration `yaml:"poll_interval"`

	Workers int `yaml:"workers"`
}

// LoggingConfig tunes the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Vault: VaultConfig{
			Path: ".",
		},
		Chunking: ChunkingConfig{
			MaxTokens:     512,
			OverlapTokens: 64,
			Encoding:      "cl100k_base",
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Host:        "http://localhost:11434",
			Model:       "nomic-embed-text",
			Dimensions:  768,
			TokenBudget: 8192,
			Timeout:     60 * time.Second,
			CacheSize:   1000,
		},
		Search: SearchConfig{
			PoolMultiplier: 4,
			RerankWeight:   0.7,
			RRFConstant:    60,
			RerankWorkers:  8,
		},
		Watcher: WatcherConfig{
			Debounce:     1500 * time.Millisecond,
			PollInterval: 10 * time.Second,
			Workers:      4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path, or the vault-local default when
// path is empty, falling back to built-in defaults when no file
// exists. Environment overrides apply afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigName); err == nil {
			path = DefaultConfigName
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, verrors.New(verrors.ErrCodeConfigNotFound, "read config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, verrors.New(verrors.ErrCodeConfigInvalid, "parse config file "+path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Vault.DataDir == "" {
		cfg.Vault.DataDir = filepath.Join(cfg.Vault.Path, ".vaultscope")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies VAULTSCOPE_* environment variables, which
// take precedence over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTSCOPE_VAULT"); v != "" {
		c.Vault.Path = v
	}
	if v := os.Getenv("VAULTSCOPE_DATA_DIR"); v != "" {
		c.Vault.DataDir = v
	}
	if v := os.Getenv("VAULTSCOPE_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("VAULTSCOPE_OLLAMA_HOST"); v != "" {
		c.Embedding.Host = v
	}
	if v := os.Getenv("VAULTSCOPE_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("VAULTSCOPE_RERANK_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.RerankWeight = f
		}
	}
	if v := os.Getenv("VAULTSCOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations that would misbehave silently.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return verrors.ConfigError("chunking.max_tokens must be positive", nil)
	}
	if c.Chunking.OverlapTokens < 0 {
		return verrors.ConfigError("chunking.overlap_tokens must not be negative", nil)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return verrors.ConfigError(
			fmt.Sprintf("chunking.overlap_tokens (%d) must be smaller than max_tokens (%d)",
				c.Chunking.OverlapTokens, c.Chunking.MaxTokens), nil)
	}
	switch c.Embedding.Provider {
	case "ollama", "static":
	default:
		return verrors.ConfigError("embedding.provider must be ollama or static, got "+c.Embedding.Provider, nil)
	}
	if c.Embedding.Dimensions <= 0 {
		return verrors.ConfigError("embedding.dimensions must be positive", nil)
	}
	if c.Search.RerankWeight < 0 || c.Search.RerankWeight > 1 {
		return verrors.ConfigError(
			fmt.Sprintf("search.rerank_weight must be in [0,1], got %g", c.Search.RerankWeight), nil)
	}
	if c.Search.PoolMultiplier <= 0 {
		return verrors.ConfigError("search.pool_multiplier must be positive", nil)
	}
	if c.Watcher.Debounce <= 0 {
		return verrors.ConfigError("watcher.debounce must be positive", nil)
	}
	return nil
}

// WriteYAML writes the config to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
