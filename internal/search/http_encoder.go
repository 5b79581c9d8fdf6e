package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

// HTTP cross-encoder defaults.
const (
	DefaultEncoderEndpoint = "http://localhost:9659"
	DefaultEncoderModel    = "reranker-small"
	DefaultEncoderTimeout  = 30 * time.Second
)

// HTTPEncoderConfig configures the HTTP cross-encoder client.
type HTTPEncoderConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration

	// SkipHealthCheck skips the startup probe, for tests.
	SkipHealthCheck bool
}

func (c HTTPEncoderConfig) withDefaults() HTTPEncoderConfig {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEncoderEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultEncoderModel
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultEncoderTimeout
	}
	return c
}

// HTTPCrossEncoder scores pairs against a local model server exposing
// a /rerank endpoint.
type HTTPCrossEncoder struct {
	client *http.Client
	config HTTPEncoderConfig

	mu     sync.RWMutex
	closed bool
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewHTTPCrossEncoder creates the client and probes the server unless
// the health check is skipped.
func NewHTTPCrossEncoder(ctx context.Context, cfg HTTPEncoderConfig) (*HTTPCrossEncoder, error) {
	cfg = cfg.withDefaults()

	e := &HTTPCrossEncoder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if !e.Available(checkCtx) {
			return nil, verrors.New(verrors.ErrCodeConfigInvalid,
				fmt.Sprintf("cross-encoder server unreachable at %s", cfg.Endpoint), nil)
		}
	}

	slog.Debug("cross-encoder client created",
		"endpoint", cfg.Endpoint,
		"model", cfg.Model)
	return e, nil
}

// Score sends all pairs in one request and returns scores in input
// order.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("cross-encoder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return []float64{}, nil
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     e.config.Model,
		Query:     query,
		Documents: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Endpoint+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeQueryFailed, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, verrors.New(verrors.ErrCodeQueryFailed,
			fmt.Sprintf("rerank server returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// Available probes the server's /health endpoint.
func (e *HTTPCrossEncoder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close idles the transport.
func (e *HTTPCrossEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if t, ok := e.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
