package session

import (
	"errors"
	"testing"

	"github.com/omnirag/omnirag-go/internal/pipeline/index"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
)

func addNormalizedSource(t *testing.T, s *Session, id, text string) *models.Source {
	t.Helper()
	source := &models.Source{
		ID:            id,
		Kind:          models.KindWeb,
		Name:          id,
		ExtractedText: &text,
		Status:        models.StatusNormalized,
	}
	s.AddSource(source)
	return source
}

func TestSession_SourceSequence(t *testing.T) {
	s := New()
	addNormalizedSource(t, s, "src-a", "alpha")
	addNormalizedSource(t, s, "src-b", "beta")
	addNormalizedSource(t, s, "src-c", "gamma")

	sources := s.Sources()
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	for i, source := range sources {
		if source.Sequence != i {
			t.Errorf("source %s: expected sequence %d, got %d", source.ID, i, source.Sequence)
		}
	}
}

func TestSession_RemoveSource(t *testing.T) {
	s := New()
	source := addNormalizedSource(t, s, "src-a", "alpha text")
	addNormalizedSource(t, s, "src-b", "beta text")

	chunk := models.Chunk{ID: "src-a:0", SourceID: "src-a", Ordinal: 0, Text: "alpha text"}
	s.PutChunks([]models.Chunk{chunk})
	if err := s.Index().AddBatch("stub-model", []index.Entry{
		{Chunk: chunk, SourceSeq: source.Sequence, Vector: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("failed to index chunk: %v", err)
	}
	// Normalize results are cached under the raw payload fingerprint, chunk
	// and embed results under the extracted text fingerprint.
	source.RawPayload = []byte("raw alpha bytes")
	s.Cache().Put(Key(models.Fingerprint(source.RawPayload), "normalize", nil), "cached")
	fingerprint := models.FingerprintString("alpha text")
	s.Cache().Put(Key(fingerprint, "chunk", nil), "cached")

	if err := s.RemoveSource("src-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := s.GetSource("src-a"); ok {
		t.Error("source must be gone")
	}
	if _, ok := s.GetChunk("src-a:0"); ok {
		t.Error("chunks must be gone")
	}
	if s.Index().Len() != 0 {
		t.Errorf("index entries must be gone, got %d", s.Index().Len())
	}
	if s.Cache().Len() != 0 {
		t.Errorf("cached results must be invalidated, got %d", s.Cache().Len())
	}

	if err := s.RemoveSource("src-missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestSession_HistoryWindow(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		s.AppendTurn(models.ConversationTurn{ID: string(rune('a' + i)), Role: role})
	}

	recent := s.RecentTurns(4)
	if len(recent) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(recent))
	}
	if recent[0].ID != "g" || recent[3].ID != "j" {
		t.Errorf("expected last four turns g..j, got %s..%s", recent[0].ID, recent[3].ID)
	}

	if got := s.RecentTurns(100); len(got) != 10 {
		t.Errorf("oversized window must return full history, got %d", len(got))
	}
	if got := s.RecentTurns(0); got != nil {
		t.Errorf("zero window must return nil, got %v", got)
	}
}

func TestSession_Snapshot(t *testing.T) {
	s := New()
	addNormalizedSource(t, s, "src-b", "beta")
	addNormalizedSource(t, s, "src-a", "alpha")
	s.PutChunks([]models.Chunk{
		{ID: "src-a:1", SourceID: "src-a", Ordinal: 1},
		{ID: "src-a:0", SourceID: "src-a", Ordinal: 0},
	})
	s.SetSummary(&models.Summary{Text: "a summary", Language: "en"})
	s.AppendTurn(models.ConversationTurn{ID: "t1", Role: "user", Text: "hi"})

	snapshot := s.Snapshot()
	if snapshot.SessionID != s.ID {
		t.Errorf("expected session ID %s, got %s", s.ID, snapshot.SessionID)
	}
	if len(snapshot.Sources) != 2 || snapshot.Sources[0].ID != "src-b" {
		t.Errorf("sources must be in ingestion order, got %+v", snapshot.Sources)
	}
	if len(snapshot.Chunks) != 2 || snapshot.Chunks[0].Ordinal != 0 {
		t.Errorf("chunks must be ordered by ordinal, got %+v", snapshot.Chunks)
	}
	if snapshot.Summary == nil || snapshot.Summary.Text != "a summary" {
		t.Error("summary must be captured")
	}
	if len(snapshot.Turns) != 1 {
		t.Errorf("expected 1 turn, got %d", len(snapshot.Turns))
	}

	// The snapshot must be detached from later mutations.
	s.SetSummary(&models.Summary{Text: "changed"})
	if snapshot.Summary.Text != "a summary" {
		t.Error("snapshot summary must not alias live state")
	}
}
