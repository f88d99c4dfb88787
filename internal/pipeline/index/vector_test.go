package index

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
)

const testModel = "text-embedding-3-small"

func makeEntry(sourceID string, sourceSeq, ordinal int, vector []float32) Entry {
	return Entry{
		Chunk: models.Chunk{
			ID:       fmt.Sprintf("%s:%d", sourceID, ordinal),
			SourceID: sourceID,
			Ordinal:  ordinal,
		},
		SourceSeq: sourceSeq,
		Vector:    vector,
	}
}

func TestVectorIndex_SearchEmpty(t *testing.T) {
	idx := NewVectorIndex()

	results, err := idx.Search(testModel, []float32{1, 0}, 4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result from empty index, got %d", len(results))
	}
}

func TestVectorIndex_SearchRanking(t *testing.T) {
	idx := NewVectorIndex()
	batch := []Entry{
		makeEntry("src-a", 0, 0, []float32{1, 0}),
		makeEntry("src-a", 0, 1, []float32{0, 1}),
		makeEntry("src-b", 1, 0, []float32{0.7, 0.7}),
	}
	if err := idx.AddBatch(testModel, batch); err != nil {
		t.Fatalf("failed to add batch: %v", err)
	}

	results, err := idx.Search(testModel, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "src-a:0" {
		t.Errorf("expected best match src-a:0, got %s", results[0].ChunkID)
	}
	if results[1].ChunkID != "src-b:0" {
		t.Errorf("expected second match src-b:0, got %s", results[1].ChunkID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestVectorIndex_NoPositiveSimilarityNoMatches(t *testing.T) {
	idx := NewVectorIndex()
	batch := []Entry{
		makeEntry("src-a", 0, 0, []float32{1, 0}),
		makeEntry("src-a", 0, 1, []float32{0.5, 0}),
	}
	if err := idx.AddBatch(testModel, batch); err != nil {
		t.Fatalf("failed to add batch: %v", err)
	}

	orthogonal, err := idx.Search(testModel, []float32{0, 1}, 4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orthogonal) != 0 {
		t.Errorf("orthogonal query must match nothing, got %+v", orthogonal)
	}

	opposed, err := idx.Search(testModel, []float32{-1, 0}, 4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opposed) != 0 {
		t.Errorf("negative similarity must not count as a match, got %+v", opposed)
	}
}

func TestVectorIndex_TieBreak(t *testing.T) {
	idx := NewVectorIndex()
	// Identical vectors produce identical scores, so ordering must come
	// from source ingestion order then chunk ordinal.
	batch := []Entry{
		makeEntry("src-b", 1, 0, []float32{1, 0}),
		makeEntry("src-a", 0, 1, []float32{1, 0}),
		makeEntry("src-a", 0, 0, []float32{1, 0}),
	}
	if err := idx.AddBatch(testModel, batch); err != nil {
		t.Fatalf("failed to add batch: %v", err)
	}

	results, err := idx.Search(testModel, []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"src-a:0", "src-a:1", "src-b:0"}
	for i, want := range expected {
		if results[i].ChunkID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, results[i].ChunkID)
		}
	}
}

func TestVectorIndex_SourceFilter(t *testing.T) {
	idx := NewVectorIndex()
	batch := []Entry{
		makeEntry("src-a", 0, 0, []float32{1, 0}),
		makeEntry("src-b", 1, 0, []float32{1, 0}),
	}
	if err := idx.AddBatch(testModel, batch); err != nil {
		t.Fatalf("failed to add batch: %v", err)
	}

	results, err := idx.Search(testModel, []float32{1, 0}, 4, map[string]bool{"src-b": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "src-b:0" {
		t.Errorf("expected only src-b:0, got %+v", results)
	}
}

func TestVectorIndex_ModelMismatch(t *testing.T) {
	idx := NewVectorIndex()
	if err := idx.AddBatch(testModel, []Entry{makeEntry("src-a", 0, 0, []float32{1, 0})}); err != nil {
		t.Fatalf("failed to add batch: %v", err)
	}

	err := idx.AddBatch("text-embedding-3-large", []Entry{makeEntry("src-b", 1, 0, []float32{0, 1})})
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch on add, got %v", err)
	}

	if _, err := idx.Search("text-embedding-3-large", []float32{1, 0}, 4, nil); !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch on search, got %v", err)
	}
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	idx := NewVectorIndex()
	batch := []Entry{
		makeEntry("src-a", 0, 0, []float32{1, 0}),
		makeEntry("src-a", 0, 1, []float32{1, 0, 0}),
	}

	err := idx.AddBatch(testModel, batch)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("rejected batch must not be partially visible, index has %d entries", idx.Len())
	}
}

func TestVectorIndex_RemoveSource(t *testing.T) {
	idx := NewVectorIndex()
	batch := []Entry{
		makeEntry("src-a", 0, 0, []float32{1, 0}),
		makeEntry("src-a", 0, 1, []float32{0, 1}),
		makeEntry("src-b", 1, 0, []float32{1, 1}),
	}
	if err := idx.AddBatch(testModel, batch); err != nil {
		t.Fatalf("failed to add batch: %v", err)
	}

	if removed := idx.RemoveSource("src-a"); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if idx.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", idx.Len())
	}

	results, err := idx.Search(testModel, []float32{1, 0}, 4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.ChunkID == "src-a:0" || r.ChunkID == "src-a:1" {
			t.Errorf("removed chunk %s still searchable", r.ChunkID)
		}
	}

	idx.RemoveSource("src-b")
	if idx.ModelID() != "" {
		t.Errorf("expected model pin reset on empty index, got %s", idx.ModelID())
	}
}

func TestVectorIndex_ConcurrentSearchDuringAdd(t *testing.T) {
	idx := NewVectorIndex()
	if err := idx.AddBatch(testModel, []Entry{makeEntry("src-a", 0, 0, []float32{1, 0})}); err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			sourceID := fmt.Sprintf("src-%d", seq+1)
			batch := []Entry{makeEntry(sourceID, seq+1, 0, []float32{0, 1})}
			if err := idx.AddBatch(testModel, batch); err != nil {
				t.Errorf("concurrent add failed: %v", err)
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := idx.Search(testModel, []float32{1, 0}, 4, nil); err != nil {
				t.Errorf("concurrent search failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if idx.Len() != 9 {
		t.Errorf("expected 9 entries after concurrent adds, got %d", idx.Len())
	}
}
