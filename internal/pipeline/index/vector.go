package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	ErrModelMismatch     = errors.New("embedding model mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyBatch        = errors.New("empty batch")
)

type entry struct {
	chunkID   string
	sourceID  string
	sourceSeq int
	ordinal   int
	vector    []float32
	norm      float64
}

// VectorIndex is an in-memory brute-force cosine similarity index. The first
// committed batch pins the embedding model; later batches must match it.
type VectorIndex struct {
	mu      sync.RWMutex
	modelID string
	entries []entry
	logger  zerolog.Logger
}

// NewVectorIndex creates an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// Entry associates a chunk with its embedding for indexing.
type Entry struct {
	Chunk     models.Chunk
	SourceSeq int
	Vector    []float32
}

// AddBatch commits a batch of embedded chunks atomically. Either every entry
// becomes visible to searches or none does.
func (idx *VectorIndex) AddBatch(modelID string, batch []Entry) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	prepared := make([]entry, 0, len(batch))
	dim := len(batch[0].Vector)
	for _, item := range batch {
		if len(item.Vector) != dim {
			idx.logger.Error().
				Str("chunk_id", item.Chunk.ID).
				Int("expected", dim).
				Int("got", len(item.Vector)).
				Msg("inconsistent vector dimension in batch")
			return fmt.Errorf("%w: chunk %s", ErrDimensionMismatch, item.Chunk.ID)
		}
		prepared = append(prepared, entry{
			chunkID:   item.Chunk.ID,
			sourceID:  item.Chunk.SourceID,
			sourceSeq: item.SourceSeq,
			ordinal:   item.Chunk.Ordinal,
			vector:    item.Vector,
			norm:      vectorNorm(item.Vector),
		})
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.modelID == "" {
		idx.modelID = modelID
	} else if idx.modelID != modelID {
		idx.logger.Error().
			Str("index_model", idx.modelID).
			Str("batch_model", modelID).
			Msg("refusing to mix embedding models")
		return fmt.Errorf("%w: index has %s, batch has %s", ErrModelMismatch, idx.modelID, modelID)
	}
	if len(idx.entries) > 0 && len(idx.entries[0].vector) != dim {
		return fmt.Errorf("%w: index has %d, batch has %d", ErrDimensionMismatch, len(idx.entries[0].vector), dim)
	}

	idx.entries = append(idx.entries, prepared...)
	return nil
}

// Search returns the top k entries by cosine similarity against the query
// vector. Entries with non-positive similarity are not matches and are
// omitted, so a query unrelated to the corpus yields an empty result. Ties
// are broken by source ingestion order, then chunk ordinal. An empty index
// yields an empty result.
func (idx *VectorIndex) Search(modelID string, query []float32, k int, sourceFilter map[string]bool) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 {
		return nil, nil
	}
	if idx.modelID != modelID {
		return nil, fmt.Errorf("%w: index has %s, query has %s", ErrModelMismatch, idx.modelID, modelID)
	}
	if len(query) != len(idx.entries[0].vector) {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, len(idx.entries[0].vector), len(query))
	}

	queryNorm := vectorNorm(query)
	results := make([]models.SearchResult, 0, len(idx.entries))
	for _, e := range idx.entries {
		if sourceFilter != nil && !sourceFilter[e.sourceID] {
			continue
		}
		score := cosine(query, queryNorm, e.vector, e.norm)
		if score <= 0 {
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:   e.chunkID,
			Score:     score,
			SourceSeq: e.sourceSeq,
			Ordinal:   e.ordinal,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].SourceSeq != results[j].SourceSeq {
			return results[i].SourceSeq < results[j].SourceSeq
		}
		return results[i].Ordinal < results[j].Ordinal
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// RemoveSource drops every entry belonging to the given source. Removing the
// last entry resets the model pin so a fresh corpus can use a different model.
func (idx *VectorIndex) RemoveSource(sourceID string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.entries[:0]
	removed := 0
	for _, e := range idx.entries {
		if e.sourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	idx.entries = kept
	if len(idx.entries) == 0 {
		idx.modelID = ""
	}
	return removed
}

// Len returns the number of indexed chunks.
func (idx *VectorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// ModelID returns the embedding model the index is pinned to, or "" when empty.
func (idx *VectorIndex) ModelID() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.modelID
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
