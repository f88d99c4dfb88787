package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/internal/pipeline/repository"
	"github.com/omnirag/omnirag-go/internal/pipeline/services"
	"github.com/omnirag/omnirag-go/pkg/db"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	exportSessionID string
	exportOutput    string
	exportPlainText bool
)

// sessionReport is the JSON shape written by the export command.
type sessionReport struct {
	SessionID    string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Sources      []reportSource `json:"sources"`
	Summary      *reportSummary `json:"summary,omitempty"`
	Conversation []reportTurn   `json:"conversation"`
}

type reportSource struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`
	ChunkCount    int     `json:"chunk_count"`
}

type reportSummary struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type reportTurn struct {
	Role          string   `json:"role"`
	Text          string   `json:"text"`
	Citations     []string `json:"citations,omitempty"`
	LowConfidence bool     `json:"low_confidence,omitempty"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored session as a JSON report",
	Long: `Export a stored session's summary and conversation as a JSON report.

Examples:
  omnirag export --session 7d5a... --output report.json
  omnirag export --session 7d5a... --plain`,
	Run: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportSessionID, "session", "", "Session ID to export (required)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (defaults to stdout)")
	exportCmd.Flags().BoolVar(&exportPlainText, "plain", false, "Strip markdown from summary and answers")

	if err := exportCmd.MarkFlagRequired("session"); err != nil {
		return
	}
}

func runExport(_ *cobra.Command, _ []string) {
	logger := util.NewLogger(zerolog.ErrorLevel)

	database, err := db.NewConnection()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := repository.NewSessionRepository(database)
	snapshot, err := repo.LoadSnapshot(exportSessionID)
	if err != nil {
		logger.Fatal().Err(err).Str("session_id", exportSessionID).Msg("Failed to load session")
	}

	report := buildReport(snapshot, exportPlainText)

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode report")
	}
	encoded = append(encoded, '\n')

	if exportOutput == "" {
		fmt.Print(string(encoded))
		return
	}
	if err := os.WriteFile(exportOutput, encoded, 0o600); err != nil {
		logger.Fatal().Err(err).Str("output", exportOutput).Msg("Failed to write report")
	}
	fmt.Printf("Report written to %s\n", exportOutput)
}

func buildReport(snapshot *models.SessionSnapshot, plain bool) *sessionReport {
	report := &sessionReport{
		SessionID:   snapshot.SessionID,
		CreatedAt:   snapshot.CreatedAt,
		GeneratedAt: time.Now().UTC(),
	}

	chunkCounts := make(map[string]int)
	for _, chunk := range snapshot.Chunks {
		chunkCounts[chunk.SourceID]++
	}
	for _, source := range snapshot.Sources {
		report.Sources = append(report.Sources, reportSource{
			ID:            source.ID,
			Kind:          string(source.Kind),
			Name:          source.Name,
			Status:        string(source.Status),
			FailureReason: source.FailureReason,
			ChunkCount:    chunkCounts[source.ID],
		})
	}

	if snapshot.Summary != nil {
		text := snapshot.Summary.DisplayText
		if plain {
			text = services.CleanMarkdown(text)
		}
		report.Summary = &reportSummary{
			Text:     text,
			Language: snapshot.Summary.Language,
		}
	}

	for _, turn := range snapshot.Turns {
		text := turn.Text
		if turn.DisplayText != "" {
			text = turn.DisplayText
		}
		if plain {
			text = services.CleanMarkdown(text)
		}
		report.Conversation = append(report.Conversation, reportTurn{
			Role:          turn.Role,
			Text:          text,
			Citations:     turn.CitedChunkIDs,
			LowConfidence: turn.LowConfidence,
		})
	}

	return report
}
