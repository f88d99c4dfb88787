package chunkers

import (
	"errors"
	"strings"
	"testing"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
)

func newTestChunker(t *testing.T) *CharacterChunker {
	t.Helper()
	chunker, err := NewCharacterChunker()
	if err != nil {
		t.Fatalf("failed to create character chunker: %v", err)
	}
	return chunker
}

// reconstruct joins chunks in ordinal order, trimming each chunk's head
// overlap except for the first.
func reconstruct(chunks []*models.Chunk, overlap int) string {
	var builder strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk.Text)
		if i == 0 {
			builder.WriteString(chunk.Text)
			continue
		}
		builder.WriteString(string(runes[overlap:]))
	}
	return builder.String()
}

func TestNewCharacterChunker(t *testing.T) {
	chunker := newTestChunker(t)
	if chunker.GetChunkingStrategy() != "character" {
		t.Errorf("expected strategy 'character', got %s", chunker.GetChunkingStrategy())
	}
}

func TestCharacterChunker_ChunkText(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		sourceID     string
		targetSize   int
		overlap      int
		expectErr    error
		expectChunks int
		description  string
	}{
		{
			name:        "empty content",
			text:        "",
			sourceID:    "src",
			targetSize:  100,
			overlap:     10,
			expectErr:   ErrEmptyContent,
			description: "should return error for empty content",
		},
		{
			name:        "whitespace only content",
			text:        " \n\t ",
			sourceID:    "src",
			targetSize:  100,
			overlap:     10,
			expectErr:   ErrEmptyContent,
			description: "should return error for whitespace-only content",
		},
		{
			name:        "invalid target size",
			text:        "hello world",
			sourceID:    "src",
			targetSize:  0,
			overlap:     0,
			expectErr:   ErrInvalidTarget,
			description: "should return error for zero target size",
		},
		{
			name:        "overlap not below target",
			text:        "hello world",
			sourceID:    "src",
			targetSize:  10,
			overlap:     10,
			expectErr:   ErrInvalidOverlap,
			description: "should return error when overlap reaches target size",
		},
		{
			name:        "missing source id",
			text:        "hello world",
			sourceID:    "",
			targetSize:  100,
			overlap:     10,
			expectErr:   ErrMissingSourceID,
			description: "should return error for empty source id",
		},
		{
			name:         "short content single chunk",
			text:         "This fits in one chunk.",
			sourceID:     "src",
			targetSize:   100,
			overlap:      10,
			expectChunks: 1,
			description:  "should create single chunk for short content",
		},
	}

	chunker := newTestChunker(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := chunker.ChunkText(tt.text, tt.sourceID, tt.targetSize, tt.overlap)

			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Errorf("expected %v, got %v: %s", tt.expectErr, err, tt.description)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v: %s", err, tt.description)
			}
			if len(chunks) != tt.expectChunks {
				t.Errorf("expected %d chunks, got %d: %s", tt.expectChunks, len(chunks), tt.description)
			}
		})
	}
}

func TestCharacterChunker_ChunkText_ScenarioA(t *testing.T) {
	// 3000 characters with no sentence boundaries, so every cut lands
	// exactly on the budget: 4 chunks stepping by 900.
	text := strings.Repeat("abcdefghij", 300)
	chunker := newTestChunker(t)

	chunks, err := chunker.ChunkText(text, "src", 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i].Text[len(chunks[i].Text)-100:]
		head := chunks[i+1].Text[:100]
		if tail != head {
			t.Errorf("chunk %d tail does not match chunk %d head", i, i+1)
		}
	}

	if got := reconstruct(chunks, 100); got != text {
		t.Error("reconstructed text does not match original")
	}
}

func TestCharacterChunker_ChunkText_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	chunker := newTestChunker(t)

	first, err := chunker.ChunkText(text, "src", 500, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := chunker.ChunkText(text, "src", 500, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected identical chunk counts, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text ||
			first[i].StartOffset != second[i].StartOffset || first[i].EndOffset != second[i].EndOffset {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestCharacterChunker_ChunkText_BoundaryBackoff(t *testing.T) {
	// A sentence boundary sits shortly before the budget; the cut should
	// back up to it instead of splitting the following sentence.
	text := strings.Repeat("x", 880) + ". " + strings.Repeat("y", 400)
	chunker := newTestChunker(t)

	chunks, err := chunker.ChunkText(text, "src", 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, ". ") && !strings.HasSuffix(chunks[0].Text, ".") {
		t.Errorf("expected first chunk to end at the sentence boundary, got tail %q",
			chunks[0].Text[len(chunks[0].Text)-10:])
	}
	if got := reconstruct(chunks, 100); got != text {
		t.Error("reconstructed text does not match original")
	}
}

func TestCharacterChunker_ChunkText_ReconstructionWithUnicode(t *testing.T) {
	text := strings.Repeat("नमस्ते दुनिया। यह एक परीक्षण है। ", 80)
	chunker := newTestChunker(t)

	chunks, err := chunker.ChunkText(text, "src", 600, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reconstruct(chunks, 60); got != text {
		t.Error("reconstructed multibyte text does not match original")
	}
}

func TestCharacterChunker_ChunkText_StableIDsAndOffsets(t *testing.T) {
	text := strings.Repeat("0123456789", 50)
	chunker := newTestChunker(t)

	chunks, err := chunker.ChunkText(text, "deadbeef", 200, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Errorf("expected ordinal %d, got %d", i, chunk.Ordinal)
		}
		if chunk.SourceID != "deadbeef" {
			t.Errorf("expected source id to back-reference the source, got %s", chunk.SourceID)
		}
		if expected := "deadbeef:" + string(rune('0'+i)); i < 10 && chunk.ID != expected {
			t.Errorf("expected chunk id %s, got %s", expected, chunk.ID)
		}
		if i > 0 && chunk.StartOffset != chunks[i-1].EndOffset-20 {
			t.Errorf("chunk %d start offset %d does not overlap predecessor end %d by 20",
				i, chunk.StartOffset, chunks[i-1].EndOffset)
		}
		if chunk.TokenCount == nil || *chunk.TokenCount <= 0 {
			t.Errorf("chunk %d has no token count", i)
		}
	}
}

func TestGetDefaultTargetSize(t *testing.T) {
	t.Setenv("CHUNKER_TARGET_SIZE", "")
	if got := GetDefaultTargetSize(); got != 1000 {
		t.Errorf("expected default target size 1000, got %d", got)
	}

	t.Setenv("CHUNKER_TARGET_SIZE", "750")
	if got := GetDefaultTargetSize(); got != 750 {
		t.Errorf("expected target size 750 from env, got %d", got)
	}
}

func TestGetDefaultOverlap(t *testing.T) {
	t.Setenv("CHUNKER_OVERLAP", "")
	if got := GetDefaultOverlap(); got != 100 {
		t.Errorf("expected default overlap 100, got %d", got)
	}
}
