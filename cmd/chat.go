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
	chatSessionID     string
	chatQuestion      string
	chatTopK          int
	chatHistoryWindow int
	chatLanguage      string
	chatSourceFilter  []string
	chatDeterministic bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask a question about a stored session's sources",
	Long: `Ask a question grounded in the ingested sources of a stored session.
The answer cites the chunks it was grounded on; when nothing relevant is
found it is flagged as low confidence.

Examples:
  omnirag chat --session 7d5a... --question "What is the main argument?"
  omnirag chat --session 7d5a... --question "¿De qué trata?" --lang es`,
	Run: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Session ID to chat against (required)")
	chatCmd.Flags().StringVarP(&chatQuestion, "question", "q", "", "Question to ask (required)")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "Number of chunks to retrieve")
	chatCmd.Flags().IntVar(&chatHistoryWindow, "history", 0, "Conversation turns to include in the prompt")
	chatCmd.Flags().StringVar(&chatLanguage, "lang", "en", "Target language for the answer")
	chatCmd.Flags().StringArrayVar(&chatSourceFilter, "source", nil, "Restrict retrieval to these source IDs; repeatable")
	chatCmd.Flags().BoolVar(&chatDeterministic, "deterministic", false, "Cache answers for repeated identical questions")
	chatCmd.Flags().StringVar(&generationModel, "gen-model", "", "Generation model override")

	for _, flag := range []string{"session", "question"} {
		if err := chatCmd.MarkFlagRequired(flag); err != nil {
			return
		}
	}
}

func runChat(_ *cobra.Command, _ []string) {
	logger := util.NewLogger(zerolog.ErrorLevel)

	if chatLanguage != "" && !generators.IsSupportedLanguage(chatLanguage) {
		logger.Fatal().Str("language", chatLanguage).Msg("Unsupported target language")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	database, err := db.NewConnection()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := repository.NewSessionRepository(database)
	snapshot, err := repo.LoadSnapshot(chatSessionID)
	if err != nil {
		logger.Fatal().Err(err).Str("session_id", chatSessionID).Msg("Failed to load session")
	}
	sess := session.Restore(snapshot)

	embedder, err := newEmbedder(embeddingModelOrDefault())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create embedder")
	}

	// Vectors are not persisted, so restore retrieval by re-embedding the
	// stored chunks.
	engine := services.NewIngestEngine()
	if err := engine.RebuildIndex(ctx, sess, embedder, 4); err != nil {
		logger.Fatal().Err(err).Msg("Failed to rebuild the session index")
	}

	generator, err := generators.NewGroqGenerator(generationModel)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create generator")
	}
	translator := generators.NewLLMTranslator(generator)
	orchestrator := services.NewOrchestrator(embedder, generator, translator)

	result, err := orchestrator.Answer(ctx, sess, chatQuestion, &interfaces.AnswerOptions{
		TopK:           chatTopK,
		HistoryWindow:  chatHistoryWindow,
		TargetLanguage: chatLanguage,
		SourceFilter:   chatSourceFilter,
		Deterministic:  chatDeterministic,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to answer question")
	}

	fmt.Println(result.Turn.DisplayText)
	if result.Turn.LowConfidence {
		fmt.Println("\n(low confidence: no relevant content found in the session sources)")
	} else if len(result.Turn.CitedChunkIDs) > 0 {
		fmt.Printf("\nCited chunks: %v\n", result.Turn.CitedChunkIDs)
	}

	updated := sess.Snapshot()
	if err := repo.SaveSnapshot(&updated); err != nil {
		logger.Fatal().Err(err).Msg("Failed to persist session snapshot")
	}
}
