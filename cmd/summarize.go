package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/generators"
	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/repository"
	"github.com/omnirag/omnirag-go/internal/pipeline/services"
	"github.com/omnirag/omnirag-go/internal/pipeline/session"
	"github.com/omnirag/omnirag-go/pkg/db"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	summarizeSessionID string
	summaryLength      string
	summaryLanguage    string
	summaryBudget      int
	generationModel    string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the sources of a stored session",
	Long: `Generate a markdown summary of every normalized source in a stored session,
optionally translated into another language (es, hi, te, ta).

Examples:
  omnirag summarize --session 7d5a... --length short
  omnirag summarize --session 7d5a... --lang hi`,
	Run: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().StringVar(&summarizeSessionID, "session", "", "Session ID to summarize (required)")
	summarizeCmd.Flags().StringVar(&summaryLength, "length", "medium", "Summary length (short, medium, detailed)")
	summarizeCmd.Flags().StringVar(&summaryLanguage, "lang", "en", "Target language for the summary")
	summarizeCmd.Flags().IntVar(&summaryBudget, "budget", 0, "Maximum chunks sampled into the summary prompt")
	summarizeCmd.Flags().StringVar(&generationModel, "gen-model", "", "Generation model override")

	if err := summarizeCmd.MarkFlagRequired("session"); err != nil {
		return
	}
}

func runSummarize(_ *cobra.Command, _ []string) {
	logger := util.NewLogger(zerolog.ErrorLevel)

	if summaryLanguage != "" && !generators.IsSupportedLanguage(summaryLanguage) {
		logger.Fatal().Str("language", summaryLanguage).Msg("Unsupported target language")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	database, err := db.NewConnection()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := repository.NewSessionRepository(database)
	snapshot, err := repo.LoadSnapshot(summarizeSessionID)
	if err != nil {
		logger.Fatal().Err(err).Str("session_id", summarizeSessionID).Msg("Failed to load session")
	}
	sess := session.Restore(snapshot)

	embedder, err := newEmbedder(embeddingModelOrDefault())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create embedder")
	}
	generator, err := generators.NewGroqGenerator(generationModel)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create generator")
	}
	translator := generators.NewLLMTranslator(generator)
	orchestrator := services.NewOrchestrator(embedder, generator, translator)

	summary, err := orchestrator.Summarize(ctx, sess, &interfaces.SummaryOptions{
		LengthHint:     summaryLength,
		TargetLanguage: summaryLanguage,
		ChunkBudget:    summaryBudget,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Summarization failed")
	}

	fmt.Println(summary.DisplayText)

	updated := sess.Snapshot()
	if err := repo.SaveSnapshot(&updated); err != nil {
		logger.Fatal().Err(err).Msg("Failed to persist session snapshot")
	}
}

func embeddingModelOrDefault() string {
	if embeddingModel != "" {
		return embeddingModel
	}
	return "text-embedding-3-small"
}
