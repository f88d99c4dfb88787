package normalizers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

// DOCXNormalizer extracts paragraph text from DOCX payloads. A DOCX file is a
// ZIP container whose word/document.xml holds the text runs.
type DOCXNormalizer struct {
	logger zerolog.Logger
}

// NewDOCXNormalizer creates a new DOCX normalizer.
func NewDOCXNormalizer() *DOCXNormalizer {
	return &DOCXNormalizer{
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// GetSourceKind returns the kind of source this normalizer handles.
func (d *DOCXNormalizer) GetSourceKind() models.SourceKind {
	return models.KindDOCX
}

// Normalize extracts one line per paragraph, preserving the document's
// paragraph boundaries for the chunker.
func (d *DOCXNormalizer) Normalize(_ context.Context, source *models.Source) (*interfaces.NormalizeResult, error) {
	if source.Kind != models.KindDOCX {
		return nil, ErrNormalizerNotSupported
	}
	if len(source.RawPayload) == 0 {
		d.logger.Error().Str("source_id", source.ID).Msg("DOCX source has no payload")
		return nil, ErrMissingPayload
	}

	reader, err := zip.NewReader(bytes.NewReader(source.RawPayload), int64(len(source.RawPayload)))
	if err != nil {
		d.logger.Error().Err(err).Str("source_id", source.ID).Msg("failed to open DOCX archive")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var documentXML io.ReadCloser
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			documentXML, err = file.Open()
			if err != nil {
				d.logger.Error().Err(err).Str("source_id", source.ID).Msg("failed to open document.xml")
				return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
			break
		}
	}
	if documentXML == nil {
		d.logger.Error().Str("source_id", source.ID).Msg("word/document.xml not found")
		return nil, ErrDocumentXMLNotFound
	}
	defer func() {
		if err := documentXML.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close document.xml")
		}
	}()

	paragraphs, err := extractParagraphs(documentXML)
	if err != nil {
		d.logger.Error().Err(err).Str("source_id", source.ID).Msg("failed to parse document.xml")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	return &interfaces.NormalizeResult{
		Text: strings.Join(paragraphs, "\n"),
		Metadata: map[string]interface{}{
			"paragraphs": len(paragraphs),
		},
	}, nil
}

// extractParagraphs walks the WordprocessingML token stream collecting the
// text runs (w:t) of each paragraph (w:p). Tabs and explicit breaks become
// whitespace so reading order is preserved.
func extractParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inParagraph := false

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				if inParagraph {
					var text string
					if err := decoder.DecodeElement(&text, &t); err != nil {
						return nil, err
					}
					current.WriteString(text)
				}
			case "tab":
				if inParagraph {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inParagraph {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				paragraphs = append(paragraphs, current.String())
			}
		}
	}

	return paragraphs, nil
}
