package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq openAIChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "extracted"}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "extracted" {
		t.Errorf("expected response 'extracted', got %q", got)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("expected path /v1/chat/completions, got %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("expected default model gpt-4o-mini, got %s", gotReq.Model)
	}
	if gotReq.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", gotReq.Temperature)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" || gotReq.Messages[0].Content != "hello" {
		t.Errorf("expected single user message with prompt, got %+v", gotReq.Messages)
	}
}

func TestOpenAIEmbed(t *testing.T) {
	var gotPath string
	var gotReq openAIEmbedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	vec, err := client.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dimensional vector, got %d", len(vec))
	}
	if gotPath != "/v1/embeddings" {
		t.Errorf("expected path /v1/embeddings, got %s", gotPath)
	}
	if gotReq.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %s", gotReq.Model)
	}
	if gotReq.Input != "some text" {
		t.Errorf("expected input to carry the text, got %q", gotReq.Input)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	if _, err := client.Complete(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on non-200 response")
	} else if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("expected status in error, got: %v", err)
	}
}

func TestOpenAIEmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	if _, err := client.Embed(context.Background(), "some text"); err == nil {
		t.Fatal("expected error on empty embedding response")
	}
}

func TestAnthropicComplete(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotReq anthropicMessagesRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "first "},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "second"},
			},
		})
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "anth-test", BaseURL: srv.URL})

	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "first second" {
		t.Errorf("expected concatenated text blocks, got %q", got)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("expected path /v1/messages, got %s", gotPath)
	}
	if gotKey != "anth-test" {
		t.Errorf("expected x-api-key header, got %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("expected anthropic-version %s, got %q", anthropicAPIVersion, gotVersion)
	}
	if gotReq.MaxTokens != anthropicMaxTokens {
		t.Errorf("expected max_tokens %d, got %d", anthropicMaxTokens, gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("expected single user message, got %+v", gotReq.Messages)
	}
}

func TestAnthropicEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": []interface{}{}})
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "anth-test", BaseURL: srv.URL})

	if _, err := client.Complete(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on empty content")
	}
}
