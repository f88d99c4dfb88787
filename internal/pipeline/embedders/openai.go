package embedders

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

var openAIModels = map[string]modelSpec{
	"text-embedding-3-small": {dimension: 1536, maxTokens: 8191},
	"text-embedding-3-large": {dimension: 3072, maxTokens: 8191},
	"text-embedding-ada-002": {dimension: 1536, maxTokens: 8191},
}

// OpenAIEmbedder implements the embedding capability against OpenAI's API.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	spec       modelSpec
	httpClient *http.Client
	apiURL     string
	logger     zerolog.Logger
}

// OpenAIEmbeddingRequest is the request body for the OpenAI embeddings API.
type OpenAIEmbeddingRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format"`
}

// NewOpenAIEmbedder creates a new OpenAI embedder.
func NewOpenAIEmbedder(model string) (*OpenAIEmbedder, error) {
	return NewOpenAIEmbedderWithClient(model, nil, "")
}

// NewOpenAIEmbedderWithClient creates an OpenAI embedder with a custom HTTP
// client and API URL, used by tests to point at a stub server.
func NewOpenAIEmbedderWithClient(model string, httpClient *http.Client, apiURL string) (*OpenAIEmbedder, error) {
	logger := util.NewLogger(zerolog.ErrorLevel)
	apiKey := os.Getenv("OPENAI_API_KEY")
	if strings.EqualFold(apiKey, "") {
		logger.Error().Msg("OPENAI_API_KEY env variable not set")
		return nil, ErrAPIKeyNotSet
	}

	spec, ok := openAIModels[model]
	if !ok {
		logger.Error().Str("model", model).Err(ErrUnsupportedModel).Msg("unsupported embedding model")
		return nil, ErrUnsupportedModel
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/embeddings"
	}

	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		spec:       spec,
		httpClient: httpClient,
		apiURL:     apiURL,
		logger:     logger,
	}, nil
}

// GenerateEmbedding creates a vector embedding for the given content.
func (o *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, content string) ([]float32, error) {
	if strings.TrimSpace(content) == "" {
		o.logger.Warn().Msg("content is empty")
		return nil, ErrContentEmpty
	}

	request := OpenAIEmbeddingRequest{
		Input:          cleanContent(content),
		Model:          o.model,
		EncodingFormat: "float",
	}
	return postEmbedding(ctx, o.httpClient, o.apiURL, o.apiKey, request, o.logger)
}

// GetModelName returns the name of the embedding model.
func (o *OpenAIEmbedder) GetModelName() string {
	return o.model
}

// GetDimension returns the dimension of the embedding vectors.
func (o *OpenAIEmbedder) GetDimension() int {
	return o.spec.dimension
}

// GetMaxTokens returns the largest chunk, in tokens, this embedder accepts.
func (o *OpenAIEmbedder) GetMaxTokens() int {
	return o.spec.maxTokens
}
