package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

const requestTimeout = 30 * time.Second

// modelSpec pins the vector dimension and token budget of a supported model.
type modelSpec struct {
	dimension int
	maxTokens int
}

// embeddingResponse is the shared response envelope; both providers answer
// with an OpenAI-style {"data":[{"embedding":[...]}]} body.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
		Object    string    `json:"object"`
	} `json:"data"`
	Model string `json:"model"`
}

// cleanContent flattens newlines so a multi-line chunk embeds as one passage.
func cleanContent(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
}

// postEmbedding sends one embedding request and returns the first vector.
// Timeouts surface as ErrTimeout; any other transport or status failure
// surfaces as ErrEmbeddingFailed.
func postEmbedding(
	ctx context.Context,
	client *http.Client,
	apiURL, apiKey string,
	payload any,
	logger zerolog.Logger,
) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Err(err).Msg("failed to marshal request")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(body))
	if err != nil {
		logger.Err(err).Msg("failed to create request")
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	resp, err := client.Do(req)
	if err != nil {
		if util.IsTimeoutError(err) {
			logger.Err(err).Msg("embedding request timed out")
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		logger.Err(err).Msg("failed to make request")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status_code", resp.StatusCode).Msg("embedding request rejected")
		return nil, fmt.Errorf("%w: status %d", ErrEmbeddingFailed, resp.StatusCode)
	}

	var response embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		logger.Err(err).Msg("failed to decode response")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(response.Data) == 0 {
		logger.Warn().Msg("no embedding data in response")
		return nil, ErrNoEmbeddingData
	}
	return response.Data[0].Embedding, nil
}
