package embedders

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

var togetherAIModels = map[string]modelSpec{
	"togethercomputer/m2-bert-80M-8k-retrieval":  {dimension: 768, maxTokens: 8192},
	"togethercomputer/m2-bert-80M-32k-retrieval": {dimension: 768, maxTokens: 32768},
}

// TogetherAIEmbedder implements the embedding capability against Together AI's API.
type TogetherAIEmbedder struct {
	apiKey     string
	model      string
	spec       modelSpec
	httpClient *http.Client
	apiURL     string
	logger     zerolog.Logger
}

// TogetherAIEmbeddingRequest is the request body for the Together AI embeddings API.
type TogetherAIEmbeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

// NewTogetherAIEmbedder creates a new Together AI embedder.
func NewTogetherAIEmbedder(model string) (*TogetherAIEmbedder, error) {
	return NewTogetherAIEmbedderWithClient(model, nil, "")
}

// NewTogetherAIEmbedderWithClient creates a Together AI embedder with a custom
// HTTP client and API URL, used by tests to point at a stub server.
func NewTogetherAIEmbedderWithClient(
	model string,
	httpClient *http.Client,
	apiURL string,
) (*TogetherAIEmbedder, error) {
	logger := util.NewLogger(zerolog.ErrorLevel)
	apiKey := os.Getenv("TOGETHER_API_KEY")
	if strings.EqualFold(apiKey, "") {
		logger.Error().Msg("TOGETHER_API_KEY env variable not set")
		return nil, ErrAPIKeyNotSet
	}

	spec, ok := togetherAIModels[model]
	if !ok {
		logger.Error().Str("model", model).Err(ErrUnsupportedModel).Msg("unsupported embedding model")
		return nil, ErrUnsupportedModel
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if apiURL == "" {
		apiURL = "https://api.together.xyz/v1/embeddings"
	}

	return &TogetherAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		spec:       spec,
		httpClient: httpClient,
		apiURL:     apiURL,
		logger:     logger,
	}, nil
}

// GenerateEmbedding creates a vector embedding for the given content.
func (t *TogetherAIEmbedder) GenerateEmbedding(ctx context.Context, content string) ([]float32, error) {
	if strings.TrimSpace(content) == "" {
		t.logger.Warn().Msg("content is empty")
		return nil, ErrContentEmpty
	}

	request := TogetherAIEmbeddingRequest{
		Input: cleanContent(content),
		Model: t.model,
	}
	return postEmbedding(ctx, t.httpClient, t.apiURL, t.apiKey, request, t.logger)
}

// GetModelName returns the name of the embedding model.
func (t *TogetherAIEmbedder) GetModelName() string {
	return t.model
}

// GetDimension returns the dimension of the embedding vectors.
func (t *TogetherAIEmbedder) GetDimension() int {
	return t.spec.dimension
}

// GetMaxTokens returns the largest chunk, in tokens, this embedder accepts.
func (t *TogetherAIEmbedder) GetMaxTokens() int {
	return t.spec.maxTokens
}
