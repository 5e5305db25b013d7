package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// Model is the chat model to use for completions (default: gpt-4o-mini)
	Model string

	// EmbeddingModel is the model to use for embeddings (default: text-embedding-3-small)
	EmbeddingModel string

	// BaseURL is the base URL for the OpenAI API (default: https://api.openai.com).
	// Overriding it also makes the client work against OpenAI-compatible gateways.
	BaseURL string

	// Timeout is the request timeout duration (default: 60s)
	Timeout time.Duration
}

// OpenAIClient handles communication with the OpenAI API for both
// completions and embeddings. All HTTP calls are wrapped with circuit
// breaker protection.
type OpenAIClient struct {
	apiKey         string
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	embeddingModel string
	timeout        time.Duration
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		timeout:        config.Timeout,
	}
}

// Complete sends a chat completion request to OpenAI and returns the
// response text. The prompt goes out as a single user message with
// temperature 0, since extraction prompts expect deterministic output.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}

	var respData openAIChatResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/v1/chat/completions", c.authHeader(), reqBody, &respData); err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(respData.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return respData.Choices[0].Message.Content, nil
}

// Embed generates an embedding vector for the given text using the
// configured embedding model.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *OpenAIClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := openAIEmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	}

	var respData openAIEmbedResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/v1/embeddings", c.authHeader(), reqBody, &respData); err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding vector")
	}

	return respData.Data[0].Embedding, nil
}

func (c *OpenAIClient) authHeader() http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	return header
}

// GetModel returns the configured chat model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// Compile-time assertions that OpenAIClient satisfies both LLM interfaces.
var _ TextGenerator = (*OpenAIClient)(nil)
var _ EmbeddingGenerator = (*OpenAIClient)(nil)
