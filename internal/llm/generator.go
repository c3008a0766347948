// Package llm provides text generation for query rewriting. Implementations
// cover a local Ollama server and OpenAI-compatible chat APIs.
package llm

import (
	"context"
	"fmt"

	"github.com/lodestone-kb/lodestone/internal/config"
)

// Generator produces a text completion for a prompt.
type Generator interface {
	// Generate returns the model's completion for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Available checks if the generator is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// New creates a generator from configuration.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaGenerator(OllamaConfig{
			Host:  cfg.OllamaHost,
			Model: cfg.Model,
		}), nil
	case "openai":
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:  config.OpenAIAPIKey(),
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
