package llm

import (
	"fmt"
	"log/slog"

	"github.com/scrypster/agentmemory/internal/config"
)

// DefaultOllamaBaseURL is Ollama's OpenAI-compatible endpoint.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// NewTextGenerator creates the appropriate TextGenerator based on the LLM config.
// Returns (nil, nil) when no provider is configured.
func NewTextGenerator(cfg config.LLMConfig, logger *slog.Logger) (TextGenerator, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Logger: logger,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Logger: logger,
		}), nil
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "qwen2.5:7b"
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey: "ollama", Model: model, BaseURL: ollamaBaseURL(cfg), Timeout: cfg.Timeout, Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator.
// Returns (nil, nil) when no embedding model is configured or the provider
// doesn't support embeddings (Anthropic).
func NewEmbeddingGenerator(cfg config.LLMConfig, logger *slog.Logger) (EmbeddingGenerator, error) {
	if cfg.EmbeddingModel == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey: cfg.APIKey, Model: cfg.EmbeddingModel, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Logger: logger,
		}), nil
	case "ollama":
		return NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey: "ollama", Model: cfg.EmbeddingModel, BaseURL: ollamaBaseURL(cfg), Timeout: cfg.Timeout, Logger: logger,
		}), nil
	default:
		return nil, nil
	}
}

func ollamaBaseURL(cfg config.LLMConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return DefaultOllamaBaseURL
}
