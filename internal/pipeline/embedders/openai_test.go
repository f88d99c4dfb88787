package embedders

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOpenAIEmbedder(t *testing.T) {
	tests := []struct {
		name        string
		model       string
		apiKey      string
		expectError bool
		expectedDim int
		expectedMax int
		description string
	}{
		{
			name:        "valid text-embedding-3-small",
			model:       "text-embedding-3-small",
			apiKey:      "test-api-key",
			expectError: false,
			expectedDim: 1536,
			expectedMax: 8191,
			description: "should create embedder for text-embedding-3-small",
		},
		{
			name:        "valid text-embedding-3-large",
			model:       "text-embedding-3-large",
			apiKey:      "test-api-key",
			expectError: false,
			expectedDim: 3072,
			expectedMax: 8191,
			description: "should create embedder for text-embedding-3-large",
		},
		{
			name:        "valid text-embedding-ada-002",
			model:       "text-embedding-ada-002",
			apiKey:      "test-api-key",
			expectError: false,
			expectedDim: 1536,
			expectedMax: 8191,
			description: "should create embedder for text-embedding-ada-002",
		},
		{
			name:        "unsupported model",
			model:       "unsupported-model",
			apiKey:      "test-api-key",
			expectError: true,
			description: "should return error for unsupported model",
		},
		{
			name:        "missing api key",
			model:       "text-embedding-3-small",
			apiKey:      "",
			expectError: true,
			description: "should return error when API key is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.apiKey)

			embedder, err := NewOpenAIEmbedder(tt.model)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none: %s", tt.description)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v: %s", err, tt.description)
			}

			if embedder.GetModelName() != tt.model {
				t.Errorf("expected model %s, got %s", tt.model, embedder.GetModelName())
			}
			if embedder.GetDimension() != tt.expectedDim {
				t.Errorf("expected dimension %d, got %d", tt.expectedDim, embedder.GetDimension())
			}
			if embedder.GetMaxTokens() != tt.expectedMax {
				t.Errorf("expected max tokens %d, got %d", tt.expectedMax, embedder.GetMaxTokens())
			}
		})
	}
}

func TestOpenAIEmbedder_GenerateEmbedding(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0,"object":"embedding"}],"model":"text-embedding-3-small","object":"list","usage":{"prompt_tokens":3,"total_tokens":3}}`)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedderWithClient("text-embedding-3-small", server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vector, err := embedder.GenerateEmbedding(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("expected 3 components, got %d", len(vector))
	}
	if vector[0] != 0.1 || vector[2] != 0.3 {
		t.Errorf("unexpected vector values: %v", vector)
	}
}

func TestOpenAIEmbedder_GenerateEmbedding_Errors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedderWithClient("text-embedding-3-small", server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if _, err := embedder.GenerateEmbedding(context.Background(), ""); !errors.Is(err, ErrContentEmpty) {
		t.Errorf("expected ErrContentEmpty for empty content, got %v", err)
	}
	if _, err := embedder.GenerateEmbedding(context.Background(), "hello"); !errors.Is(err, ErrEmbeddingFailed) {
		t.Errorf("expected ErrEmbeddingFailed for API error, got %v", err)
	}
}

func TestOpenAIEmbedder_GenerateEmbedding_Timeout(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	embedder, err := NewOpenAIEmbedderWithClient("text-embedding-3-small", client, server.URL)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if _, err := embedder.GenerateEmbedding(context.Background(), "hello"); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout for slow backend, got %v", err)
	}
}
