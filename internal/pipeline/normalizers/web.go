package normalizers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/internal/pipeline/retry"
	"github.com/omnirag/omnirag-go/pkg/util"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const (
	// HTTP client timeout in seconds.
	defaultWebTimeout = 30 * time.Second
	// Transient fetch errors get one retry.
	fetchMaxAttempts = 2
	fetchBackoff     = 500 * time.Millisecond
)

// Elements removed before text extraction. Matches the boilerplate a reader
// never wants retrieved: navigation, scripts, styling, page chrome.
var strippedSelectors = []string{"script", "style", "nav", "footer", "aside", "noscript"}

// WebNormalizer fetches a web page and converts its reading-order content to
// markdown-flavoured plain text.
type WebNormalizer struct {
	client            *http.Client
	markdownConverter *md.Converter
	fetchPolicy       retry.Policy
	logger            zerolog.Logger
}

// NewWebNormalizer creates a new web page normalizer.
func NewWebNormalizer() *WebNormalizer {
	return NewWebNormalizerWithClient(nil)
}

// NewWebNormalizerWithClient creates a web normalizer with a custom HTTP
// client, used by tests to point at a stub server.
func NewWebNormalizerWithClient(client *http.Client) *WebNormalizer {
	if client == nil {
		client = &http.Client{Timeout: defaultWebTimeout}
	}

	return &WebNormalizer{
		client:            client,
		markdownConverter: md.NewConverter("", true, nil),
		fetchPolicy: retry.Policy{
			MaxAttempts: fetchMaxAttempts,
			Backoff:     fetchBackoff,
			Retryable:   isTransientFetchError,
		},
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// GetSourceKind returns the kind of source this normalizer handles.
func (w *WebNormalizer) GetSourceKind() models.SourceKind {
	return models.KindWeb
}

// Normalize fetches the URL and extracts reading-order text.
func (w *WebNormalizer) Normalize(ctx context.Context, source *models.Source) (*interfaces.NormalizeResult, error) {
	if source.Kind != models.KindWeb {
		return nil, ErrNormalizerNotSupported
	}
	if source.RawURL == nil || *source.RawURL == "" {
		w.logger.Error().Str("source_id", source.ID).Msg("web source has no URL")
		return nil, ErrMissingURL
	}

	var body string
	err := w.fetchPolicy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = w.fetch(ctx, *source.RawURL)
		return fetchErr
	})
	if err != nil {
		w.logger.Error().Err(err).Str("url", *source.RawURL).Msg("failed to fetch web page")
		return nil, err
	}

	text, title, err := w.extractText(body)
	if err != nil {
		w.logger.Error().Err(err).Str("url", *source.RawURL).Msg("failed to extract page text")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		w.logger.Error().Str("url", *source.RawURL).Msg("page contains no extractable text")
		return nil, ErrExtractionFailed
	}

	return &interfaces.NormalizeResult{
		Text: text,
		Metadata: map[string]interface{}{
			"title": title,
			"url":   *source.RawURL,
		},
	}, nil
}

func (w *WebNormalizer) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", "omnirag/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		if util.IsTimeoutError(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			w.logger.Error().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		w.logger.Error().Int("status_code", resp.StatusCode).Str("url", rawURL).Msg("unexpected status code")
		return "", fmt.Errorf("%w: %w: %d", ErrFetchFailed, ErrUnexpectedStatusCode, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		w.logger.Error().Str("content_type", contentType).Str("url", rawURL).Msg("not an HTML page")
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, ErrNotHTMLContent)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return html, nil
}

// extractText strips boilerplate elements and converts the remaining body to
// markdown, which doubles as readable plain text for chunking.
func (w *WebNormalizer) extractText(html string) (text, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	for _, selector := range strippedSelectors {
		doc.Find(selector).Remove()
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	bodyHTML, err := goquery.OuterHtml(body)
	if err != nil {
		return "", "", err
	}

	markdown, err := w.markdownConverter.ConvertString(bodyHTML)
	if err != nil {
		return "", "", err
	}

	return strings.TrimSpace(markdown), title, nil
}

// isTransientFetchError reports whether a fetch failure is worth retrying.
// Non-HTML content is a property of the resource, not of the attempt;
// everything else (network errors, timeouts, bad status codes) may clear up.
func isTransientFetchError(err error) bool {
	return !errors.Is(err, ErrNotHTMLContent)
}
