package normalizers

import "errors"

var (
	ErrUnsupportedSourceKind  = errors.New("unsupported source kind")
	ErrFetchFailed            = errors.New("fetch failed")
	ErrExtractionFailed       = errors.New("extraction failed")
	ErrNoTranscriptAvailable  = errors.New("no transcript available")
	ErrMissingPayload         = errors.New("source has no raw payload")
	ErrMissingURL             = errors.New("source has no URL")
	ErrNotHTMLContent         = errors.New("response is not HTML content")
	ErrInvalidVideoURL        = errors.New("cannot extract video id from URL")
	ErrOCRAPIURLNotSet        = errors.New("OCR_API_URL env variable not set")
	ErrOCRRequestFailed       = errors.New("OCR API request failed")
	ErrUnexpectedStatusCode   = errors.New("unexpected status code")
	ErrDocumentXMLNotFound    = errors.New("word/document.xml not found in archive")
	ErrNoPagesInPDF           = errors.New("PDF contains no pages")
	ErrTranscriptFetchFailed  = errors.New("transcript fetch failed")
	ErrNormalizerNotSupported = errors.New("normalizer does not support this source kind")
	ErrTimeout                = errors.New("request timed out")
)
