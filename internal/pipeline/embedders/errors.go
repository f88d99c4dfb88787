package embedders

import "errors"

var (
	ErrAPIKeyNotSet     = errors.New("API key not set")
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrContentEmpty     = errors.New("content is empty")
	ErrEmbeddingFailed  = errors.New("embedding failed")
	ErrNoEmbeddingData  = errors.New("no embedding data in response")
	ErrTimeout          = errors.New("embedding request timed out")
)
