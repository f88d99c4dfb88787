package generators

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newGroqStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request GroqChatRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		response := GroqChatResponse{}
		response.Choices = append(response.Choices, struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{})
		response.Choices[0].Message.Role = "assistant"
		response.Choices[0].Message.Content = reply
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
}

func TestNewGroqGenerator(t *testing.T) {
	tests := []struct {
		name          string
		model         string
		apiKey        string
		expectError   bool
		expectedModel string
		description   string
	}{
		{
			name:          "default model",
			model:         "",
			apiKey:        "test-api-key",
			expectedModel: "llama3-8b-8192",
			description:   "should fall back to the default model",
		},
		{
			name:          "explicit model",
			model:         "llama3-70b-8192",
			apiKey:        "test-api-key",
			expectedModel: "llama3-70b-8192",
			description:   "should keep the requested model",
		},
		{
			name:        "missing api key",
			model:       "llama3-8b-8192",
			apiKey:      "",
			expectError: true,
			description: "should return error when API key is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GROQ_API_KEY", tt.apiKey)

			generator, err := NewGroqGenerator(tt.model)

			if tt.expectError {
				if !errors.Is(err, ErrAPIKeyNotSet) {
					t.Errorf("expected ErrAPIKeyNotSet, got %v: %s", err, tt.description)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v: %s", err, tt.description)
			}
			if generator.GetModelName() != tt.expectedModel {
				t.Errorf("expected model %s, got %s: %s", tt.expectedModel, generator.GetModelName(), tt.description)
			}
		})
	}
}

func TestGroqGenerator_Generate(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-api-key")

	server := newGroqStub(t, "a concise answer")
	defer server.Close()

	generator, err := NewGroqGeneratorWithClient("", server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	answer, err := generator.Generate(context.Background(), "What is this document about?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "a concise answer" {
		t.Errorf("expected stub answer, got %q", answer)
	}
}

func TestGroqGenerator_Generate_Errors(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-api-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	generator, err := NewGroqGeneratorWithClient("", server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	if _, err := generator.Generate(context.Background(), "  "); !errors.Is(err, ErrPromptEmpty) {
		t.Errorf("expected ErrPromptEmpty, got %v", err)
	}
	if _, err := generator.Generate(context.Background(), "hello"); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestGroqGenerator_Generate_Timeout(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-api-key")

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	generator, err := NewGroqGeneratorWithClient("", &http.Client{Timeout: 20 * time.Millisecond}, server.URL)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	if _, err := generator.Generate(context.Background(), "hello"); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout for slow backend, got %v", err)
	}
}

func TestLLMTranslator_Translate(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-api-key")

	server := newGroqStub(t, "hola mundo")
	defer server.Close()

	generator, err := NewGroqGeneratorWithClient("", server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	translator := NewLLMTranslator(generator)

	tests := []struct {
		name        string
		text        string
		language    string
		expected    string
		expectErr   error
		description string
	}{
		{
			name:        "english is a no-op",
			text:        "hello world",
			language:    "en",
			expected:    "hello world",
			description: "should return English text unchanged",
		},
		{
			name:        "spanish goes through the generator",
			text:        "hello world",
			language:    "es",
			expected:    "hola mundo",
			description: "should translate via the LLM",
		},
		{
			name:        "unsupported code",
			text:        "hello world",
			language:    "fr",
			expectErr:   ErrUnsupportedLanguage,
			description: "should reject unsupported language codes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translator.Translate(context.Background(), tt.text, tt.language)

			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Errorf("expected %v, got %v: %s", tt.expectErr, err, tt.description)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v: %s", err, tt.description)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q: %s", tt.expected, got, tt.description)
			}
		})
	}
}
