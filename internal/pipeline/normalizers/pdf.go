package normalizers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// PDFNormalizer extracts text from PDF payloads page by page.
type PDFNormalizer struct {
	logger zerolog.Logger
}

// NewPDFNormalizer creates a new PDF normalizer.
func NewPDFNormalizer() *PDFNormalizer {
	return &PDFNormalizer{
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// GetSourceKind returns the kind of source this normalizer handles.
func (p *PDFNormalizer) GetSourceKind() models.SourceKind {
	return models.KindPDF
}

// Normalize extracts plain text from the PDF, one page at a time, keeping a
// blank line between pages so paragraph boundaries survive for chunking.
func (p *PDFNormalizer) Normalize(ctx context.Context, source *models.Source) (*interfaces.NormalizeResult, error) {
	if source.Kind != models.KindPDF {
		return nil, ErrNormalizerNotSupported
	}
	if len(source.RawPayload) == 0 {
		p.logger.Error().Str("source_id", source.ID).Msg("PDF source has no payload")
		return nil, ErrMissingPayload
	}

	reader, err := pdf.NewReader(bytes.NewReader(source.RawPayload), int64(len(source.RawPayload)))
	if err != nil {
		p.logger.Error().Err(err).Str("source_id", source.ID).Msg("failed to open PDF")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		p.logger.Error().Str("source_id", source.ID).Msg("PDF contains no pages")
		return nil, ErrNoPagesInPDF
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page (scanned image, broken font map)
			// does not fail the whole document.
			p.logger.Warn().Err(err).Str("source_id", source.ID).Int("page", i).Msg("failed to extract page text")
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, strings.TrimSpace(text))
		}
	}

	if len(pages) == 0 {
		p.logger.Error().Str("source_id", source.ID).Msg("no text found in PDF, likely a scanned document")
		return nil, ErrExtractionFailed
	}

	return &interfaces.NormalizeResult{
		Text: strings.Join(pages, "\n\n"),
		Metadata: map[string]interface{}{
			"pages": numPages,
		},
	}, nil
}
