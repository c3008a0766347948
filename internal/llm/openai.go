package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible generator.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIGenerator generates text via any OpenAI-compatible chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates an OpenAI-compatible generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai generator requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Generate returns the model's completion for the prompt.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Available checks if the API responds to a model listing request.
func (g *OpenAIGenerator) Available(ctx context.Context) bool {
	_, err := g.client.ListModels(ctx)
	return err == nil
}

// Close releases resources.
func (g *OpenAIGenerator) Close() error {
	return nil
}
