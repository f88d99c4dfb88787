package chunkers

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/tiktoken-go/tokenizer"
)

var (
	ErrEmptyContent    = errors.New("content is empty")
	ErrInvalidTarget   = errors.New("targetSize must be positive")
	ErrInvalidOverlap  = errors.New("overlap must be between 0 and targetSize")
	ErrMissingSourceID = errors.New("sourceID cannot be empty")
)

const (
	targetSizeDefault = 1000
	overlapDefault    = 100
	// Maximum distance the cut point may back up to land on a sentence or
	// paragraph boundary.
	boundaryTolerance = 200
)

// CharacterChunker splits normalized text into overlapping character-budget
// passages, preferring sentence and paragraph boundaries near the budget.
// Identical input always yields an identical chunk sequence; chunk ids are
// derived from the source id and the ordinal so re-ingesting the same content
// reproduces the same ids.
type CharacterChunker struct {
	encoding tokenizer.Codec
	logger   zerolog.Logger
}

// NewCharacterChunker creates a new character-budget chunker.
func NewCharacterChunker() (*CharacterChunker, error) {
	logLevel := getLogLevelFromEnv()
	logger := util.NewLogger(logLevel)

	tokenizerName := getTokenizerFromEnv()
	encoding, err := getTokenizerEncoding(tokenizerName)
	if err != nil {
		logger.Error().Err(err).Str("tokenizer", tokenizerName).Msg("failed to get tokenizer")
		return nil, err
	}

	return &CharacterChunker{
		encoding: encoding,
		logger:   logger,
	}, nil
}

// GetChunkingStrategy returns the strategy name used by this chunker.
func (c *CharacterChunker) GetChunkingStrategy() string {
	return "character"
}

// ChunkText splits text into ordered chunks of at most targetSize characters,
// each chunk after the first starting with the last overlap characters of its
// predecessor. Offsets are rune offsets into the normalized text, so
// concatenating the chunks in order after trimming each head overlap
// reconstructs the text exactly.
func (c *CharacterChunker) ChunkText(text, sourceID string, targetSize, overlap int) ([]*models.Chunk, error) {
	if sourceID == "" {
		c.logger.Warn().Msg("sourceID is empty")
		return nil, ErrMissingSourceID
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Warn().Str("source_id", sourceID).Msg("content is empty")
		return nil, ErrEmptyContent
	}
	if targetSize <= 0 {
		c.logger.Warn().Msg("targetSize must be positive")
		return nil, ErrInvalidTarget
	}
	if overlap < 0 || overlap >= targetSize {
		c.logger.Warn().Msg("overlap must be between 0 and targetSize")
		return nil, ErrInvalidOverlap
	}

	runes := []rune(text)
	total := len(runes)

	// Short content fits in a single chunk.
	if total <= targetSize {
		chunk, err := c.buildChunk(runes, sourceID, 0, 0, total)
		if err != nil {
			return nil, err
		}
		return []*models.Chunk{chunk}, nil
	}

	var chunks []*models.Chunk
	start := 0
	for ordinal := 0; start < total; ordinal++ {
		end := start + targetSize
		if end >= total {
			end = total
		} else {
			end = backUpToBoundary(runes, start, end, overlap)
		}

		chunk, err := c.buildChunk(runes, sourceID, ordinal, start, end)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)

		if end >= total {
			break
		}
		start = end - overlap
	}

	return chunks, nil
}

// CountTokens returns the number of tokens in the given text.
func (c *CharacterChunker) CountTokens(text string) (int, error) {
	tokens, _, err := c.encoding.Encode(text)
	if err != nil {
		c.logger.Err(err).Msg("failed to tokenize text")
		return 0, err
	}
	return len(tokens), nil
}

func (c *CharacterChunker) buildChunk(runes []rune, sourceID string, ordinal, start, end int) (*models.Chunk, error) {
	body := string(runes[start:end])

	tokens, _, err := c.encoding.Encode(body)
	if err != nil {
		c.logger.Err(err).Str("source_id", sourceID).Int("ordinal", ordinal).Msg("failed to tokenize chunk")
		return nil, err
	}
	tokenCount := len(tokens)
	tokenizerName := getTokenizerFromEnv()

	return &models.Chunk{
		ID:          fmt.Sprintf("%s:%d", sourceID, ordinal),
		SourceID:    sourceID,
		Ordinal:     ordinal,
		Text:        body,
		StartOffset: start,
		EndOffset:   end,
		TokenCount:  &tokenCount,
		Tokenizer:   &tokenizerName,
	}, nil
}

// backUpToBoundary moves the cut point left to the nearest sentence or
// paragraph boundary inside the tolerance window. The cut never backs up past
// start+overlap+1, which would stall the scan.
func backUpToBoundary(runes []rune, start, end, overlap int) int {
	tolerance := boundaryTolerance
	if limit := end - (start + overlap + 1); tolerance > limit {
		tolerance = limit
	}
	if tolerance <= 0 {
		return end
	}

	for i := end; i > end-tolerance; i-- {
		if isBoundary(runes, i) {
			return i
		}
	}
	return end
}

// isBoundary reports whether cutting before index i lands just after a
// sentence terminator or a newline.
func isBoundary(runes []rune, i int) bool {
	prev := runes[i-1]
	if prev == '\n' {
		return true
	}
	if i < len(runes) && (prev == '.' || prev == '!' || prev == '?') {
		next := runes[i]
		return next == ' ' || next == '\n' || next == '\t'
	}
	return false
}

// Helper functions.

// getTokenizerFromEnv returns the tokenizer name from environment or default.
func getTokenizerFromEnv() string {
	tokenizerName := os.Getenv("CHUNKER_TOKENIZER")
	if tokenizerName == "" {
		return "cl100k_base"
	}
	return tokenizerName
}

// getTokenizerEncoding returns the tokenizer encoding for the given name.
func getTokenizerEncoding(name string) (tokenizer.Codec, error) {
	switch strings.ToLower(name) {
	case "cl100k_base":
		return tokenizer.Get(tokenizer.Cl100kBase)
	case "p50k_base":
		return tokenizer.Get(tokenizer.P50kBase)
	case "r50k_base":
		return tokenizer.Get(tokenizer.R50kBase)
	default:
		// Default to cl100k_base for unknown tokenizers
		return tokenizer.Get(tokenizer.Cl100kBase)
	}
}

// getLogLevelFromEnv returns the log level from environment or default.
func getLogLevelFromEnv() zerolog.Level {
	logLevel := os.Getenv("CHUNKER_LOG_LEVEL")
	switch strings.ToLower(logLevel) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.ErrorLevel
	}
}

// getIntFromEnv returns an integer from environment variable or default value.
func getIntFromEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// GetDefaultTargetSize returns the default chunk budget from environment or default.
func GetDefaultTargetSize() int {
	return getIntFromEnv("CHUNKER_TARGET_SIZE", targetSizeDefault)
}

// GetDefaultOverlap returns the default overlap from environment or default.
func GetDefaultOverlap() int {
	return getIntFromEnv("CHUNKER_OVERLAP", overlapDefault)
}
