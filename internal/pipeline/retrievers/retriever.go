package retrievers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/index"
	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	ErrQueryEmpty           = errors.New("query is empty")
	ErrQueryEmbeddingFailed = errors.New("query embedding failed")
)

// RetrievedChunk pairs a search hit with the chunk text it refers to.
type RetrievedChunk struct {
	Chunk models.Chunk
	Score float64
}

// ChunkLookup resolves a chunk ID to its stored chunk.
type ChunkLookup interface {
	GetChunk(chunkID string) (models.Chunk, bool)
}

// Retriever embeds a query and ranks indexed chunks against it.
type Retriever struct {
	embedder interfaces.Embedder
	index    *index.VectorIndex
	chunks   ChunkLookup
	logger   zerolog.Logger
}

// NewRetriever creates a retriever over the given index and chunk store.
func NewRetriever(embedder interfaces.Embedder, idx *index.VectorIndex, chunks ChunkLookup) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    idx,
		chunks:   chunks,
		logger:   util.NewLogger(zerolog.ErrorLevel),
	}
}

// Retrieve returns the top k chunks most similar to the query. Query
// embeddings are computed fresh on every call and never retried. An empty
// index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, sourceFilter map[string]bool) ([]RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryEmpty
	}
	if r.index.Len() == 0 {
		return nil, nil
	}

	vector, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to embed query")
		return nil, fmt.Errorf("%w: %v", ErrQueryEmbeddingFailed, err)
	}

	results, err := r.index.Search(r.embedder.GetModelName(), vector, k, sourceFilter)
	if err != nil {
		r.logger.Error().Err(err).Msg("index search failed")
		return nil, err
	}

	retrieved := make([]RetrievedChunk, 0, len(results))
	for _, result := range results {
		chunk, ok := r.chunks.GetChunk(result.ChunkID)
		if !ok {
			r.logger.Warn().Str("chunk_id", result.ChunkID).Msg("indexed chunk missing from store")
			continue
		}
		retrieved = append(retrieved, RetrievedChunk{Chunk: chunk, Score: result.Score})
	}
	return retrieved, nil
}
