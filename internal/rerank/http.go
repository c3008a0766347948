package rerank

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

	apperrors "github.com/lodestone-kb/lodestone/internal/errors"
)

// HTTP reranker configuration defaults
const (
	DefaultEndpoint = "http://localhost:9659"
	DefaultModel    = "reranker-small"
	DefaultTimeout  = 30 * time.Second
)

// HTTPConfig holds configuration for the HTTP reranker.
type HTTPConfig struct {
	// Endpoint is the reranker server URL (default: http://localhost:9659)
	Endpoint string

	// Model is the reranker model alias (default: reranker-small)
	Model string

	// Timeout is the request timeout (default: 30s)
	Timeout time.Duration

	// SkipHealthCheck skips health check during creation (for testing)
	SkipHealthCheck bool
}

// HTTPReranker implements cross-encoder reranking via an HTTP service
// exposing a /rerank endpoint.
type HTTPReranker struct {
	client *http.Client
	config HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*HTTPReranker)(nil)

// rerankRequest is the JSON request to the /rerank endpoint
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

// rerankResponse is the JSON response from the /rerank endpoint
type rerankResponse struct {
	Results []struct {
		Index    int     `json:"index"`
		Score    float64 `json:"score"`
		Document string  `json:"document"`
	} `json:"results"`
}

// NewHTTPReranker creates a reranker client for an HTTP rerank service.
func NewHTTPReranker(ctx context.Context, cfg HTTPConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	r := &HTTPReranker{
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

		if err := r.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("reranker health check failed: %w", err)
		}
	}

	slog.Debug("reranker_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return r, nil
}

// healthCheck verifies the rerank server is reachable.
func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to rerank server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rerank server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// Rerank scores and reorders documents by relevance to the query.
// All candidates go in a single inference call.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	r.mu.RUnlock()

	if len(documents) == 0 {
		return []Result{}, nil
	}

	reqBody := rerankRequest{
		Query:     query,
		Documents: documents,
		Model:     r.config.Model,
	}
	if topK > 0 {
		reqBody.TopK = topK
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeRerankFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank failed with status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var apiResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	results := make([]Result, len(apiResp.Results))
	for i, res := range apiResp.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		results[i] = Result{
			Index:    res.Index,
			Score:    res.Score,
			Document: documents[res.Index],
		}
	}

	slog.Debug("rerank_complete",
		slog.Int("documents", len(documents)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// Available checks if the rerank service responds to a health probe.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()

	return r.healthCheck(ctx) == nil
}

// Close releases resources.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.client.CloseIdleConnections()
	return nil
}
