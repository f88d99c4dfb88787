package normalizers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

const defaultOCRTimeout = 60 * time.Second

// ImageNormalizer extracts text from images through an external OCR
// capability. The OCR engine is a black box: it either returns recognized
// text or an empty string, which this normalizer treats as a failure.
type ImageNormalizer struct {
	ocr    interfaces.OCRClient
	logger zerolog.Logger
}

// NewImageNormalizer creates a new image normalizer backed by the given OCR client.
func NewImageNormalizer(ocr interfaces.OCRClient) *ImageNormalizer {
	return &ImageNormalizer{
		ocr:    ocr,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// GetSourceKind returns the kind of source this normalizer handles.
func (i *ImageNormalizer) GetSourceKind() models.SourceKind {
	return models.KindImage
}

// Normalize runs OCR on the image payload.
func (i *ImageNormalizer) Normalize(ctx context.Context, source *models.Source) (*interfaces.NormalizeResult, error) {
	if source.Kind != models.KindImage {
		return nil, ErrNormalizerNotSupported
	}
	if len(source.RawPayload) == 0 {
		i.logger.Error().Str("source_id", source.ID).Msg("image source has no payload")
		return nil, ErrMissingPayload
	}

	text, err := i.ocr.ExtractText(ctx, source.RawPayload)
	if err != nil {
		i.logger.Error().Err(err).Str("source_id", source.ID).Msg("OCR extraction failed")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if strings.TrimSpace(text) == "" {
		i.logger.Error().Str("source_id", source.ID).Msg("OCR found no readable text in the image")
		return nil, ErrExtractionFailed
	}

	return &interfaces.NormalizeResult{Text: text}, nil
}

// HTTPOCRClient implements the OCR capability against a generic HTTP OCR
// endpoint that accepts raw image bytes and answers {"text": "..."}.
type HTTPOCRClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// OCRResponse represents the response structure from the OCR API.
type OCRResponse struct {
	Text string `json:"text"`
}

// NewHTTPOCRClient creates an OCR client from OCR_API_URL and OCR_API_KEY.
func NewHTTPOCRClient() (*HTTPOCRClient, error) {
	return NewHTTPOCRClientWithClient(nil, "")
}

// NewHTTPOCRClientWithClient creates an OCR client with a custom HTTP client
// and API URL, used by tests to point at a stub server.
func NewHTTPOCRClientWithClient(httpClient *http.Client, apiURL string) (*HTTPOCRClient, error) {
	logger := util.NewLogger(zerolog.ErrorLevel)

	if apiURL == "" {
		apiURL = os.Getenv("OCR_API_URL")
	}
	if strings.EqualFold(apiURL, "") {
		logger.Error().Msg("OCR_API_URL env variable not set")
		return nil, ErrOCRAPIURLNotSet
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultOCRTimeout}
	}

	return &HTTPOCRClient{
		apiURL:     apiURL,
		apiKey:     os.Getenv("OCR_API_KEY"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ExtractText posts the image to the OCR endpoint and returns the recognized text.
func (c *HTTPOCRClient) ExtractText(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(image))
	if err != nil {
		c.logger.Err(err).Msg("failed to create OCR request")
		return "", err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if util.IsTimeoutError(err) {
			c.logger.Err(err).Msg("OCR request timed out")
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		c.logger.Err(err).Msg("OCR request failed")
		return "", fmt.Errorf("%w: %v", ErrOCRRequestFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error().Err(err).Msg("failed to close OCR response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().Int("status_code", resp.StatusCode).Msg("OCR API request failed")
		return "", ErrOCRRequestFailed
	}

	var response OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		c.logger.Err(err).Msg("failed to decode OCR response")
		return "", err
	}

	return response.Text, nil
}
