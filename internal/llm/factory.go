package llm

import (
	"fmt"

	"github.com/cogmem/cogmem/internal/config"
)

// NewTextGenerator creates the appropriate TextGenerator for the configured provider.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator.
// Anthropic has no embeddings API, so an anthropic text provider pairs with
// an Ollama embedder unless an OpenAI key is configured.
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, EmbeddingModel: cfg.EmbeddingModel, BaseURL: cfg.BaseURL}), nil
	case "ollama", "", "anthropic":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		baseURL := cfg.OllamaURL
		if cfg.Provider == "ollama" && cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		return NewOllamaClient(OllamaConfig{BaseURL: baseURL, Model: model}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
