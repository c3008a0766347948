package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder generates embeddings via any OpenAI-compatible API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dims      int
	batchSize int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     openai.EmbeddingModel(cfg.Model),
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
	}, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.Dimensions()), nil
	}

	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		req := openai.EmbeddingRequest{
			Input:          texts[start:end],
			Model:          e.model,
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		}
		if e.dims > 0 {
			req.Dimensions = e.dims
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(resp.Data))
		}

		for _, d := range resp.Data {
			results[start+d.Index] = normalizeVector(d.Embedding)
		}
	}

	// Learn the dimension from the first real response.
	if e.dims == 0 && len(results) > 0 && results[0] != nil {
		e.mu.Lock()
		e.dims = len(results[0])
		e.mu.Unlock()
	}

	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dims > 0 {
		return e.dims
	}
	return DefaultDimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return string(e.model)
}

// Available reports whether the embedder can serve requests. A cheap probe
// request verifies the endpoint and credentials.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{"ping"},
		Model: e.model,
	})
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
