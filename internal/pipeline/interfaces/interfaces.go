package interfaces

import (
	"context"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
)

// NormalizeResult represents the result of a normalization operation.
type NormalizeResult struct {
	Text     string
	Language string
	Metadata map[string]interface{}
}

// IngestResult represents the per-source outcome of an ingestion run.
type IngestResult struct {
	SourceID       string
	Status         models.SourceStatus
	ChunkCount     int
	IndexedCount   int
	FailedChunkIDs []string
	CacheHit       bool
	Error          error
}

// Normalizer converts one source kind into plain text plus metadata.
type Normalizer interface {
	// Normalize extracts reading-order text from the source payload
	Normalize(ctx context.Context, source *models.Source) (*NormalizeResult, error)

	// GetSourceKind returns the kind of source this normalizer handles
	GetSourceKind() models.SourceKind
}

// Chunker defines the interface for breaking normalized text into chunks.
type Chunker interface {
	// ChunkText splits text into ordered, overlapping chunks
	ChunkText(text, sourceID string, targetSize, overlap int) ([]*models.Chunk, error)

	// GetChunkingStrategy returns the strategy name used by this chunker
	GetChunkingStrategy() string
}

// Embedder defines the interface for generating vector embeddings.
type Embedder interface {
	// GenerateEmbedding creates a vector embedding for the given content
	GenerateEmbedding(ctx context.Context, content string) ([]float32, error)

	// GetModelName returns the name of the embedding model
	GetModelName() string

	// GetDimension returns the dimension of the embedding vectors
	GetDimension() int

	// GetMaxTokens returns the maximum number of tokens this embedder can handle
	GetMaxTokens() int
}

// Generator defines the text generation capability.
type Generator interface {
	// Generate produces text for the given prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// GetModelName returns the name of the generation model
	GetModelName() string
}

// Translator defines the translation capability.
type Translator interface {
	// Translate renders text into the target language code
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// OCRClient defines the external text extraction capability for images.
type OCRClient interface {
	// ExtractText recognizes text in the given image bytes
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// ProcessingOptions contains configuration for the ingestion pipeline.
type ProcessingOptions struct {
	TargetSize     int
	Overlap        int
	ChunkStrategy  string
	EmbeddingModel string
	Concurrency    int
	Timeout        time.Duration
}

// SummaryOptions configures a summarization request.
type SummaryOptions struct {
	LengthHint     string
	TargetLanguage string
	ChunkBudget    int
}

// AnswerOptions configures a grounded chat request.
type AnswerOptions struct {
	TopK           int
	HistoryWindow  int
	TargetLanguage string
	SourceFilter   []string
	Deterministic  bool
}
