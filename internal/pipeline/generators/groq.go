package generators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

const (
	defaultGroqModel   = "llama3-8b-8192"
	defaultTemperature = 0.2
	requestTimeout     = 120 * time.Second
)

// GroqGenerator implements the generation capability against Groq's
// OpenAI-compatible chat completions API.
type GroqGenerator struct {
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	apiURL      string
	logger      zerolog.Logger
}

// GroqChatRequest represents the request structure for Groq chat completions API.
type GroqChatRequest struct {
	Model       string        `json:"model"`
	Messages    []GroqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// GroqMessage is a single chat message.
type GroqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GroqChatResponse represents the response structure from Groq chat completions API.
type GroqChatResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewGroqGenerator creates a new Groq generator with the default model.
func NewGroqGenerator(model string) (*GroqGenerator, error) {
	return NewGroqGeneratorWithClient(model, nil, "")
}

// NewGroqGeneratorWithClient creates a new Groq generator with custom HTTP client and API URL.
func NewGroqGeneratorWithClient(model string, httpClient *http.Client, apiURL string) (*GroqGenerator, error) {
	logger := util.NewLogger(zerolog.ErrorLevel)
	apiKey := os.Getenv("GROQ_API_KEY")
	if strings.EqualFold(apiKey, "") {
		logger.Error().Msg("GROQ_API_KEY env variable not set")
		return nil, ErrAPIKeyNotSet
	}

	if model == "" {
		model = defaultGroqModel
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: requestTimeout,
		}
	}

	if apiURL == "" {
		apiURL = "https://api.groq.com/openai/v1/chat/completions"
	}

	return &GroqGenerator{
		apiKey:      apiKey,
		model:       model,
		temperature: defaultTemperature,
		httpClient:  httpClient,
		apiURL:      apiURL,
		logger:      logger,
	}, nil
}

// Generate produces text for the given prompt.
func (g *GroqGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		g.logger.Warn().Msg("prompt is empty")
		return "", ErrPromptEmpty
	}

	request := GroqChatRequest{
		Model: g.model,
		Messages: []GroqMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: g.temperature,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		g.logger.Err(err).Msg("failed to marshal request")
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		g.apiURL,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		g.logger.Err(err).Msg("failed to create request")
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if util.IsTimeoutError(err) {
			g.logger.Err(err).Msg("generation request timed out")
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		g.logger.Err(err).Msg("failed to make request")
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Error().Err(err).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		g.logger.Error().Int("status_code", resp.StatusCode).Msg("API request failed")
		return "", fmt.Errorf("%w: status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var response GroqChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		g.logger.Err(err).Msg("failed to decode response")
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if len(response.Choices) == 0 {
		g.logger.Warn().Msg("no choices in response")
		return "", ErrNoChoicesInResponse
	}

	g.logger.Debug().
		Str("model", g.model).
		Int("tokens_used", response.Usage.TotalTokens).
		Msg("Generated completion")
	return response.Choices[0].Message.Content, nil
}

// GetModelName returns the name of the generation model.
func (g *GroqGenerator) GetModelName() string {
	return g.model
}
