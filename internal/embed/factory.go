package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lodestone-kb/lodestone/internal/config"
)

// New creates an embedder from configuration. Network-backed providers fall
// back to the static embedder when unreachable, so indexing and retrieval
// keep working offline.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	inner, err := newProvider(ctx, cfg)
	if err != nil {
		slog.Warn("embedding provider unavailable, using static fallback",
			slog.String("provider", cfg.Provider),
			slog.String("error", err.Error()))
		inner = NewStaticEmbedder()
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newProvider(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     config.OpenAIAPIKey(),
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case "static", "":
		return NewStaticEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
