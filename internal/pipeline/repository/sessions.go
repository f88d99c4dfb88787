package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/db"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

var ErrSessionNotFound = errors.New("session not found")

const timeLayout = "2006-01-02T15:04:05Z"

// SessionRepository persists session snapshots so reports and exports can be
// produced after the session ends. Raw payloads never reach the database;
// only extracted text and derived state are stored.
type SessionRepository struct {
	db     *db.DB
	logger zerolog.Logger
}

func NewSessionRepository(database *db.DB) *SessionRepository {
	return &SessionRepository{
		db:     database,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// SaveSnapshot writes the whole snapshot in one transaction, replacing any
// earlier snapshot of the same session.
func (r *SessionRepository) SaveSnapshot(snapshot *models.SessionSnapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return err
	}
	defer func(tx *sql.Tx) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Error().Err(err).Msg("Failed to rollback transaction")
		}
	}(tx)

	for _, table := range []string{"turns", "summaries", "chunks", "sources", "sessions"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE session_id = ?", snapshot.SessionID); err != nil {
			r.logger.Error().Err(err).Str("table", table).Msg("Failed to clear previous snapshot")
			return err
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`,
		snapshot.SessionID, snapshot.CreatedAt.Format(timeLayout),
	); err != nil {
		r.logger.Error().Err(err).Msg("Failed to insert session")
		return err
	}

	for _, source := range snapshot.Sources {
		var normalizedAt *string
		if source.NormalizedAt != nil {
			formatted := source.NormalizedAt.Format(timeLayout)
			normalizedAt = &formatted
		}
		if _, err := tx.Exec(
			`INSERT INTO sources (id, session_id, kind, name, raw_url, extracted_text,
			                      language, status, failure_reason, sequence, created_at, normalized_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			source.ID, snapshot.SessionID, string(source.Kind), source.Name, source.RawURL,
			source.ExtractedText, source.Language, string(source.Status), source.FailureReason,
			source.Sequence, source.CreatedAt.Format(timeLayout), normalizedAt,
		); err != nil {
			r.logger.Error().Err(err).Str("source_id", source.ID).Msg("Failed to insert source")
			return err
		}
	}

	for _, chunk := range snapshot.Chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks (id, session_id, source_id, ordinal, body,
			                     start_offset, end_offset, token_count, tokenizer)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, snapshot.SessionID, chunk.SourceID, chunk.Ordinal, chunk.Text,
			chunk.StartOffset, chunk.EndOffset, chunk.TokenCount, chunk.Tokenizer,
		); err != nil {
			r.logger.Error().Err(err).Str("chunk_id", chunk.ID).Msg("Failed to insert chunk")
			return err
		}
	}

	if snapshot.Summary != nil {
		if _, err := tx.Exec(
			`INSERT INTO summaries (session_id, body, display_body, language, source_ids, generated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			snapshot.SessionID, snapshot.Summary.Text, snapshot.Summary.DisplayText,
			snapshot.Summary.Language, strings.Join(snapshot.Summary.SourceIDs, ","),
			snapshot.Summary.GeneratedAt.Format(timeLayout),
		); err != nil {
			r.logger.Error().Err(err).Msg("Failed to insert summary")
			return err
		}
	}

	for i, turn := range snapshot.Turns {
		if _, err := tx.Exec(
			`INSERT INTO turns (id, session_id, position, role, body, display_body,
			                    cited_chunk_ids, low_confidence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			turn.ID, snapshot.SessionID, i, turn.Role, turn.Text, turn.DisplayText,
			strings.Join(turn.CitedChunkIDs, ","), turn.LowConfidence,
			turn.CreatedAt.Format(timeLayout),
		); err != nil {
			r.logger.Error().Err(err).Str("turn_id", turn.ID).Msg("Failed to insert turn")
			return err
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads a persisted snapshot back.
func (r *SessionRepository) LoadSnapshot(sessionID string) (*models.SessionSnapshot, error) {
	snapshot := &models.SessionSnapshot{SessionID: sessionID}

	var createdAt string
	err := r.db.QueryRow(
		`SELECT created_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Error().Str("session_id", sessionID).Msg("Session not found")
		return nil, ErrSessionNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to get session")
		return nil, err
	}
	snapshot.CreatedAt = parseTime(createdAt)

	if snapshot.Sources, err = r.loadSources(sessionID); err != nil {
		return nil, err
	}
	if snapshot.Chunks, err = r.loadChunks(sessionID); err != nil {
		return nil, err
	}
	if snapshot.Summary, err = r.loadSummary(sessionID); err != nil {
		return nil, err
	}
	if snapshot.Turns, err = r.loadTurns(sessionID); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ListSessions returns stored session IDs, most recent first.
func (r *SessionRepository) ListSessions() ([]string, error) {
	rows, err := r.db.Query(`SELECT session_id FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list sessions")
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.logger.Error().Err(err).Msg("Failed to scan session id")
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a stored session and everything hanging off it.
func (r *SessionRepository) Delete(sessionID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return err
	}
	defer func(tx *sql.Tx) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Error().Err(err).Msg("Failed to rollback transaction")
		}
	}(tx)

	for _, table := range []string{"turns", "summaries", "chunks", "sources", "sessions"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil {
			r.logger.Error().Err(err).Str("table", table).Msg("Failed to delete session rows")
			return err
		}
	}
	return tx.Commit()
}

func (r *SessionRepository) loadSources(sessionID string) ([]models.Source, error) {
	rows, err := r.db.Query(
		`SELECT id, kind, name, raw_url, extracted_text, language, status,
		        failure_reason, sequence, created_at, normalized_at
		 FROM sources WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to query sources")
		return nil, err
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var source models.Source
		var kind, status, createdAt string
		var normalizedAt sql.NullString
		if err := rows.Scan(&source.ID, &kind, &source.Name, &source.RawURL,
			&source.ExtractedText, &source.Language, &status, &source.FailureReason,
			&source.Sequence, &createdAt, &normalizedAt); err != nil {
			r.logger.Error().Err(err).Msg("Failed to scan source")
			return nil, err
		}
		source.Kind = models.SourceKind(kind)
		source.Status = models.SourceStatus(status)
		source.CreatedAt = parseTime(createdAt)
		if normalizedAt.Valid {
			t := parseTime(normalizedAt.String)
			source.NormalizedAt = &t
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (r *SessionRepository) loadChunks(sessionID string) ([]models.Chunk, error) {
	rows, err := r.db.Query(
		`SELECT id, source_id, ordinal, body, start_offset, end_offset, token_count, tokenizer
		 FROM chunks WHERE session_id = ? ORDER BY source_id, ordinal`, sessionID)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to query chunks")
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.SourceID, &chunk.Ordinal, &chunk.Text,
			&chunk.StartOffset, &chunk.EndOffset, &chunk.TokenCount, &chunk.Tokenizer); err != nil {
			r.logger.Error().Err(err).Msg("Failed to scan chunk")
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *SessionRepository) loadSummary(sessionID string) (*models.Summary, error) {
	var summary models.Summary
	var sourceIDs, generatedAt string
	err := r.db.QueryRow(
		`SELECT body, display_body, language, source_ids, generated_at
		 FROM summaries WHERE session_id = ?`, sessionID,
	).Scan(&summary.Text, &summary.DisplayText, &summary.Language, &sourceIDs, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to get summary")
		return nil, err
	}
	if sourceIDs != "" {
		summary.SourceIDs = strings.Split(sourceIDs, ",")
	}
	summary.GeneratedAt = parseTime(generatedAt)
	return &summary, nil
}

func (r *SessionRepository) loadTurns(sessionID string) ([]models.ConversationTurn, error) {
	rows, err := r.db.Query(
		`SELECT id, role, body, display_body, cited_chunk_ids, low_confidence, created_at
		 FROM turns WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to query turns")
		return nil, err
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		var citedIDs, createdAt string
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Text, &turn.DisplayText,
			&citedIDs, &turn.LowConfidence, &createdAt); err != nil {
			r.logger.Error().Err(err).Msg("Failed to scan turn")
			return nil, err
		}
		if citedIDs != "" {
			turn.CitedChunkIDs = strings.Split(citedIDs, ",")
		}
		turn.CreatedAt = parseTime(createdAt)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
