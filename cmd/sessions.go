package cmd

import (
	"fmt"

	"github.com/omnirag/omnirag-go/internal/pipeline/repository"
	"github.com/omnirag/omnirag-go/pkg/db"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Run: func(_ *cobra.Command, _ []string) {
		logger := util.NewLogger(zerolog.ErrorLevel)

		database, err := db.NewConnection()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()

		repo := repository.NewSessionRepository(database)
		ids, err := repo.ListSessions()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to list sessions")
		}
		if len(ids) == 0 {
			fmt.Println("No stored sessions.")
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		logger := util.NewLogger(zerolog.ErrorLevel)

		database, err := db.NewConnection()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()

		repo := repository.NewSessionRepository(database)
		if err := repo.Delete(args[0]); err != nil {
			logger.Fatal().Err(err).Str("session_id", args[0]).Msg("Failed to delete session")
		}
		fmt.Printf("Deleted session %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
