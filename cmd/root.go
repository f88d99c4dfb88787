package cmd

import (
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "omnirag",
	Short: "A CLI tool for multilingual retrieval-augmented document chat",
	Long: `omnirag ingests documents, web pages, images, and video transcripts,
indexes them for semantic search, and answers questions grounded in their content.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger := util.NewLogger(zerolog.ErrorLevel)
		logger.Fatal().Err(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	logger := util.NewLogger(zerolog.ErrorLevel)
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("No .env file found")
	}
}
