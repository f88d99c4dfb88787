package generators

import (
	"context"
	"fmt"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

// supportedLanguages maps the language codes the pipeline accepts to the
// names used in the translation prompt.
var supportedLanguages = map[string]string{
	"en": "English",
	"es": "Spanish",
	"hi": "Hindi",
	"te": "Telugu",
	"ta": "Tamil",
}

// LLMTranslator implements the translation capability on top of a text
// generation backend.
type LLMTranslator struct {
	generator interfaces.Generator
	logger    zerolog.Logger
}

// NewLLMTranslator creates a translator backed by the given generator.
func NewLLMTranslator(generator interfaces.Generator) *LLMTranslator {
	return &LLMTranslator{
		generator: generator,
		logger:    util.NewLogger(zerolog.ErrorLevel),
	}
}

// IsSupportedLanguage reports whether the pipeline can translate into the
// given language code.
func IsSupportedLanguage(code string) bool {
	_, ok := supportedLanguages[code]
	return ok
}

// Translate renders text into the target language. English is the pipeline's
// working language, so "en" is a no-op.
func (t *LLMTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	languageName, ok := supportedLanguages[targetLanguage]
	if !ok {
		t.logger.Error().Str("language", targetLanguage).Msg("unsupported language code")
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, targetLanguage)
	}
	if targetLanguage == "en" || strings.TrimSpace(text) == "" {
		return text, nil
	}

	prompt := fmt.Sprintf(
		"Translate the following text accurately to %s. "+
			"Provide only the translated text, without any additional commentary or explanations.\n\n"+
			"Text to translate:\n---\n%s",
		languageName, text)

	translated, err := t.generator.Generate(ctx, prompt)
	if err != nil {
		t.logger.Error().Err(err).Str("language", targetLanguage).Msg("translation failed")
		return "", err
	}
	return strings.TrimSpace(translated), nil
}
