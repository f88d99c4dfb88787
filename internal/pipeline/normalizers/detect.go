package normalizers

import (
	"bytes"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
)

var (
	pdfMagic  = []byte("%PDF-")
	zipMagic  = []byte("PK\x03\x04")
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte("\xff\xd8\xff")
)

// DetectFileKind determines the source kind for an uploaded file from its
// name and leading bytes. Magic bytes win over the extension so a mislabelled
// upload still routes to the right normalizer.
func DetectFileKind(name string, payload []byte) (models.SourceKind, error) {
	switch {
	case bytes.HasPrefix(payload, pdfMagic):
		return models.KindPDF, nil
	case bytes.HasPrefix(payload, pngMagic), bytes.HasPrefix(payload, jpegMagic):
		return models.KindImage, nil
	case bytes.HasPrefix(payload, zipMagic):
		// DOCX is a ZIP container; trust the extension to distinguish it
		// from other OOXML/ZIP uploads.
		if strings.EqualFold(filepath.Ext(name), ".docx") {
			return models.KindDOCX, nil
		}
		return "", ErrUnsupportedSourceKind
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.KindPDF, nil
	case ".docx":
		return models.KindDOCX, nil
	case ".png", ".jpg", ".jpeg":
		return models.KindImage, nil
	}

	return "", ErrUnsupportedSourceKind
}

// DetectURLKind determines the source kind for a linked URL.
func DetectURLKind(rawURL string) (models.SourceKind, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrUnsupportedSourceKind
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrUnsupportedSourceKind
	}

	if isYouTubeURL(parsed) {
		return models.KindVideo, nil
	}
	return models.KindWeb, nil
}

func isYouTubeURL(parsed *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		return strings.HasPrefix(parsed.Path, "/watch") || strings.HasPrefix(parsed.Path, "/shorts/")
	case "youtu.be":
		return len(strings.Trim(parsed.Path, "/")) > 0
	}
	return false
}
