package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/chunkers"
	"github.com/omnirag/omnirag-go/internal/pipeline/embedders"
	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/internal/pipeline/normalizers"
	"github.com/omnirag/omnirag-go/internal/pipeline/repository"
	"github.com/omnirag/omnirag-go/internal/pipeline/services"
	"github.com/omnirag/omnirag-go/internal/pipeline/session"
	"github.com/omnirag/omnirag-go/pkg/db"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var ErrUnsupportedEmbeddingModel = errors.New("unsupported embedding model")

var (
	ingestFiles     []string
	ingestURLs      []string
	embeddingModel  string
	chunkStrategy   string
	chunkTargetSize int
	chunkOverlap    int
	concurrency     int
	ingestTimeout   time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents, web pages, images, and videos into a new session",
	Long: `Ingest local files and URLs into a new session: extract text, chunk it,
embed the chunks, and persist the session snapshot.

Examples:
  # Ingest a PDF and a web page together
  omnirag ingest --file report.pdf --url "https://example.com/article"

  # Ingest a YouTube video transcript with custom chunking
  omnirag ingest --url "https://www.youtube.com/watch?v=dQw4w9WgXcQ" --size 800 --overlap 80`,
	Run: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringArrayVarP(&ingestFiles, "file", "f", nil, "Local file to ingest (pdf, docx, png, jpg); repeatable")
	ingestCmd.Flags().StringArrayVarP(&ingestURLs, "url", "u", nil, "URL to ingest (web page or YouTube video); repeatable")
	ingestCmd.Flags().StringVarP(&embeddingModel, "model", "m", "text-embedding-3-small", "Embedding model to use")
	ingestCmd.Flags().StringVarP(&chunkStrategy, "strategy", "s", "character", "Chunking strategy")
	ingestCmd.Flags().IntVar(&chunkTargetSize, "size", chunkers.GetDefaultTargetSize(), "Target chunk size in characters")
	ingestCmd.Flags().IntVar(&chunkOverlap, "overlap", chunkers.GetDefaultOverlap(), "Overlap between adjacent chunks in characters")
	ingestCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Number of concurrent operations")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 5*time.Minute, "Timeout for the entire operation")
}

func runIngest(_ *cobra.Command, _ []string) {
	logger := util.NewLogger(zerolog.ErrorLevel)
	if len(ingestFiles) == 0 && len(ingestURLs) == 0 {
		logger.Fatal().Msg("Nothing to ingest: pass --file or --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	database, err := db.NewConnection()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	engine := services.NewIngestEngine()
	if err := registerNormalizers(engine); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register normalizers")
	}
	if err := registerChunkers(engine); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register chunkers")
	}
	if err := registerEmbedders(engine, embeddingModel); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register embedders")
	}

	sources, err := buildSources(ingestFiles, ingestURLs)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare sources")
	}

	sess := session.New()
	options := &interfaces.ProcessingOptions{
		TargetSize:     chunkTargetSize,
		Overlap:        chunkOverlap,
		ChunkStrategy:  chunkStrategy,
		EmbeddingModel: embeddingModel,
		Concurrency:    concurrency,
		Timeout:        ingestTimeout,
	}

	results := engine.IngestAll(ctx, sess, sources, options)

	failed := 0
	for _, result := range results {
		if result.Error != nil {
			failed++
			fmt.Printf("FAILED   %s: %v\n", result.SourceID, result.Error)
			continue
		}
		fmt.Printf("INGESTED %s: %d chunks, %d indexed", result.SourceID, result.ChunkCount, result.IndexedCount)
		if result.CacheHit {
			fmt.Print(" (cache hit)")
		}
		if len(result.FailedChunkIDs) > 0 {
			fmt.Printf(", %d chunks failed to embed", len(result.FailedChunkIDs))
		}
		fmt.Println()
	}

	repo := repository.NewSessionRepository(database)
	snapshot := sess.Snapshot()
	if err := repo.SaveSnapshot(&snapshot); err != nil {
		logger.Fatal().Err(err).Msg("Failed to persist session snapshot")
	}

	fmt.Printf("\nSession %s saved (%d sources, %d failed)\n", sess.ID, len(results), failed)
}

func registerNormalizers(engine *services.IngestEngine) error {
	if err := engine.RegisterNormalizer(normalizers.NewPDFNormalizer()); err != nil {
		return fmt.Errorf("failed to register pdf normalizer: %w", err)
	}
	if err := engine.RegisterNormalizer(normalizers.NewDOCXNormalizer()); err != nil {
		return fmt.Errorf("failed to register docx normalizer: %w", err)
	}
	if err := engine.RegisterNormalizer(normalizers.NewWebNormalizer()); err != nil {
		return fmt.Errorf("failed to register web normalizer: %w", err)
	}
	if err := engine.RegisterNormalizer(normalizers.NewVideoNormalizer()); err != nil {
		return fmt.Errorf("failed to register video normalizer: %w", err)
	}

	// Image OCR is optional; only wire it when the backend is configured.
	if os.Getenv("OCR_API_URL") != "" {
		ocr, err := normalizers.NewHTTPOCRClient()
		if err != nil {
			return fmt.Errorf("failed to create OCR client: %w", err)
		}
		if err := engine.RegisterNormalizer(normalizers.NewImageNormalizer(ocr)); err != nil {
			return fmt.Errorf("failed to register image normalizer: %w", err)
		}
	}
	return nil
}

func registerChunkers(engine *services.IngestEngine) error {
	characterChunker, err := chunkers.NewCharacterChunker()
	if err != nil {
		return fmt.Errorf("failed to create character chunker: %w", err)
	}
	if err := engine.RegisterChunker(characterChunker); err != nil {
		return fmt.Errorf("failed to register character chunker: %w", err)
	}
	return nil
}

func registerEmbedders(engine *services.IngestEngine, model string) error {
	embedder, err := newEmbedder(model)
	if err != nil {
		return err
	}
	if err := engine.RegisterEmbedder(embedder); err != nil {
		return fmt.Errorf("failed to register embedder: %w", err)
	}
	return nil
}

func newEmbedder(model string) (interfaces.Embedder, error) {
	switch model {
	case "text-embedding-3-small", "text-embedding-3-large", "text-embedding-ada-002":
		embedder, err := embedders.NewOpenAIEmbedder(model)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedder: %w", err)
		}
		return embedder, nil
	case "togethercomputer/m2-bert-80M-8k-retrieval", "togethercomputer/m2-bert-80M-32k-retrieval":
		embedder, err := embedders.NewTogetherAIEmbedder(model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Together AI embedder: %w", err)
		}
		return embedder, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEmbeddingModel, model)
	}
}

// buildSources derives each source ID from its content fingerprint, so
// re-ingesting identical bytes or the same URL addresses the same source.
func buildSources(files, urls []string) ([]*models.Source, error) {
	var sources []*models.Source
	seen := make(map[string]bool)
	for _, path := range files {
		payload, err := os.ReadFile(path) // #nosec G304 -- user-supplied CLI path
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		name := filepath.Base(path)
		kind, err := normalizers.DetectFileKind(name, payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		id := models.Fingerprint(payload)
		if seen[id] {
			continue
		}
		seen[id] = true
		sources = append(sources, &models.Source{
			ID:         id,
			Kind:       kind,
			Name:       name,
			RawPayload: payload,
			Status:     models.StatusPending,
		})
	}
	for _, rawURL := range urls {
		kind, err := normalizers.DetectURLKind(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rawURL, err)
		}
		id := models.FingerprintString(rawURL)
		if seen[id] {
			continue
		}
		seen[id] = true
		url := rawURL
		sources = append(sources, &models.Source{
			ID:     id,
			Kind:   kind,
			Name:   rawURL,
			RawURL: &url,
			Status: models.StatusPending,
		})
	}
	return sources, nil
}
