package models

import (
	"time"
)

// SourceKind identifies the input format of a source.
type SourceKind string

const (
	KindPDF   SourceKind = "pdf"
	KindDOCX  SourceKind = "docx"
	KindImage SourceKind = "image"
	KindWeb   SourceKind = "web"
	KindVideo SourceKind = "video"
)

// SourceStatus tracks a source through the ingestion pipeline.
type SourceStatus string

const (
	StatusPending    SourceStatus = "pending"
	StatusNormalized SourceStatus = "normalized"
	StatusFailed     SourceStatus = "failed"
)

type Source struct {
	ID            string       `json:"id"`
	Kind          SourceKind   `json:"kind"`
	Name          string       `json:"name"`
	RawURL        *string      `json:"raw_url"`
	RawPayload    []byte       `json:"-"`
	ExtractedText *string      `json:"extracted_text"`
	Language      *string      `json:"language"`
	Status        SourceStatus `json:"status"`
	FailureReason *string      `json:"failure_reason"`
	Sequence      int          `json:"sequence"`
	CreatedAt     time.Time    `json:"created_at"`
	NormalizedAt  *time.Time   `json:"normalized_at"`
}

type Chunk struct {
	ID          string  `json:"id"`
	SourceID    string  `json:"source_id"`
	Ordinal     int     `json:"ordinal"`
	Text        string  `json:"text"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	TokenCount  *int    `json:"token_count"`
	Tokenizer   *string `json:"tokenizer"`
}

type EmbeddingRecord struct {
	ChunkID    string    `json:"chunk_id"`
	ModelID    string    `json:"model_id"`
	Vector     []float32 `json:"vector"`
	EmbeddedAt time.Time `json:"embedded_at"`
}

// SearchResult is one ranked hit from the vector index. SourceSeq and Ordinal
// carry the ingestion order used to break score ties deterministically.
type SearchResult struct {
	ChunkID   string  `json:"chunk_id"`
	Score     float64 `json:"score"`
	SourceSeq int     `json:"source_seq"`
	Ordinal   int     `json:"ordinal"`
}

type ConversationTurn struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	DisplayText   string    `json:"display_text"`
	CitedChunkIDs []string  `json:"cited_chunk_ids"`
	LowConfidence bool      `json:"low_confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

type Summary struct {
	Text        string    `json:"text"`
	DisplayText string    `json:"display_text"`
	Language    string    `json:"language"`
	SourceIDs   []string  `json:"source_ids"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SessionSnapshot is the read-only view handed to report collaborators.
type SessionSnapshot struct {
	SessionID string             `json:"session_id"`
	CreatedAt time.Time          `json:"created_at"`
	Sources   []Source           `json:"sources"`
	Chunks    []Chunk            `json:"chunks"`
	Summary   *Summary           `json:"summary"`
	Turns     []ConversationTurn `json:"turns"`
}
