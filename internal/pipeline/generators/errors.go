package generators

import "errors"

var (
	ErrAPIKeyNotSet        = errors.New("API key not set")
	ErrPromptEmpty         = errors.New("prompt is empty")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrNoChoicesInResponse = errors.New("no choices in response")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrTimeout             = errors.New("generation request timed out")
)
