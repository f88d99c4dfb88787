package normalizers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
)

func webSource(url string) *models.Source {
	return &models.Source{
		ID:     models.FingerprintString(url),
		Kind:   models.KindWeb,
		Name:   url,
		RawURL: &url,
		Status: models.StatusPending,
	}
}

func TestWebNormalizer_Normalize(t *testing.T) {
	const page = `<html><head><title>Test Page</title></head><body>
<nav>menu item one</nav>
<script>var tracking = true;</script>
<h1>Welcome</h1>
<p>This is the main article content.</p>
<footer>copyright line</footer>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(page)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	normalizer := NewWebNormalizerWithClient(server.Client())
	result, err := normalizer.Normalize(context.Background(), webSource(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Text, "Welcome") || !strings.Contains(result.Text, "main article content") {
		t.Errorf("expected article content in %q", result.Text)
	}
	if strings.Contains(result.Text, "menu item one") || strings.Contains(result.Text, "copyright line") ||
		strings.Contains(result.Text, "tracking") {
		t.Errorf("expected boilerplate to be stripped, got %q", result.Text)
	}
	if result.Metadata["title"] != "Test Page" {
		t.Errorf("expected title metadata, got %v", result.Metadata["title"])
	}
}

func TestWebNormalizer_Normalize_RetriesTransientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte("<html><body><p>recovered content</p></body></html>")); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	normalizer := NewWebNormalizerWithClient(server.Client())
	result, err := normalizer.Normalize(context.Background(), webSource(server.URL))
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if !strings.Contains(result.Text, "recovered content") {
		t.Errorf("expected recovered content, got %q", result.Text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", got)
	}
}

func TestWebNormalizer_Normalize_NonHTMLNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/pdf")
		if _, err := w.Write([]byte("%PDF-")); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	normalizer := NewWebNormalizerWithClient(server.Client())
	_, err := normalizer.Normalize(context.Background(), webSource(server.URL))
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if !errors.Is(err, ErrNotHTMLContent) {
		t.Fatalf("expected ErrNotHTMLContent, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected non-HTML content to skip the retry, got %d attempts", got)
	}
}

func TestWebNormalizer_Normalize_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	normalizer := NewWebNormalizerWithClient(&http.Client{Timeout: 20 * time.Millisecond})
	normalizer.fetchPolicy.Backoff = 0
	_, err := normalizer.Normalize(context.Background(), webSource(server.URL))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout for slow server, got %v", err)
	}
}

func TestWebNormalizer_Normalize_MissingURL(t *testing.T) {
	normalizer := NewWebNormalizer()
	_, err := normalizer.Normalize(context.Background(), &models.Source{Kind: models.KindWeb})
	if !errors.Is(err, ErrMissingURL) {
		t.Errorf("expected ErrMissingURL, got %v", err)
	}
}
