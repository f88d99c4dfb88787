package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/index"
	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/internal/pipeline/session"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	// Registration errors.
	ErrNormalizerAlreadyRegistered = errors.New("normalizer already registered for source kind")
	ErrChunkerAlreadyRegistered    = errors.New("chunker already registered for strategy")
	ErrEmbedderAlreadyRegistered   = errors.New("embedder already registered for model")

	// Processing errors.
	ErrNoNormalizerRegistered = errors.New("no normalizer registered for source kind")
	ErrNoChunkerRegistered    = errors.New("no chunker registered for strategy")
	ErrNoEmbedderRegistered   = errors.New("no embedder registered for model")
	ErrIngestCancelled        = errors.New("ingest cancelled")
)

const defaultConcurrency = 4

// IngestEngine runs the normalize, chunk, embed, index pipeline for session
// sources.
type IngestEngine struct {
	normalizers map[models.SourceKind]interfaces.Normalizer
	chunkers    map[string]interfaces.Chunker
	embedders   map[string]interfaces.Embedder
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// NewIngestEngine creates an engine with no capabilities registered.
func NewIngestEngine() *IngestEngine {
	return &IngestEngine{
		normalizers: make(map[models.SourceKind]interfaces.Normalizer),
		chunkers:    make(map[string]interfaces.Chunker),
		embedders:   make(map[string]interfaces.Embedder),
		logger:      util.NewLogger(zerolog.ErrorLevel),
	}
}

// RegisterNormalizer adds a normalizer for its source kind.
func (e *IngestEngine) RegisterNormalizer(normalizer interfaces.Normalizer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	kind := normalizer.GetSourceKind()
	if _, exists := e.normalizers[kind]; exists {
		e.logger.Error().Str("kind", string(kind)).Msg("Normalizer already registered")
		return ErrNormalizerAlreadyRegistered
	}

	e.normalizers[kind] = normalizer
	e.logger.Info().Str("kind", string(kind)).Msg("Registered normalizer")
	return nil
}

// RegisterChunker adds a chunker for its strategy.
func (e *IngestEngine) RegisterChunker(chunker interfaces.Chunker) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	strategy := chunker.GetChunkingStrategy()
	if _, exists := e.chunkers[strategy]; exists {
		e.logger.Error().Str("strategy", strategy).Msg("Chunker already registered")
		return ErrChunkerAlreadyRegistered
	}

	e.chunkers[strategy] = chunker
	e.logger.Info().Str("strategy", strategy).Msg("Registered chunker")
	return nil
}

// RegisterEmbedder adds an embedder for its model.
func (e *IngestEngine) RegisterEmbedder(embedder interfaces.Embedder) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	modelName := embedder.GetModelName()
	if _, exists := e.embedders[modelName]; exists {
		e.logger.Error().Str("model_name", modelName).Msg("Embedder already registered")
		return ErrEmbedderAlreadyRegistered
	}

	e.embedders[modelName] = embedder
	e.logger.Info().Str("model_name", modelName).Msg("Registered embedder")
	return nil
}

// IngestSource runs the full pipeline for one source and commits the result
// into the session. The chunk batch becomes searchable atomically; a
// cancelled context discards the whole batch. Failures mark the source failed
// and are reported on the result rather than aborting sibling ingests.
func (e *IngestEngine) IngestSource(
	ctx context.Context,
	sess *session.Session,
	source *models.Source,
	options *interfaces.ProcessingOptions,
) *interfaces.IngestResult {
	result := &interfaces.IngestResult{SourceID: source.ID, Status: models.StatusFailed}

	if stored, ok := sess.GetSource(source.ID); ok {
		// Source IDs are content fingerprints, so a second ingest of an
		// already normalized source is a no-op. Committing it again would
		// duplicate its index entries.
		if stored.Status == models.StatusNormalized {
			result.Status = models.StatusNormalized
			result.ChunkCount = len(sess.ChunksForSource(source.ID))
			result.CacheHit = true
			e.logger.Info().Str("source_id", source.ID).Msg("Source already ingested")
			return result
		}
	} else {
		sess.AddSource(source)
	}

	e.mu.RLock()
	normalizer, hasNormalizer := e.normalizers[source.Kind]
	chunker, hasChunker := e.chunkers[options.ChunkStrategy]
	embedder, hasEmbedder := e.embedders[options.EmbeddingModel]
	e.mu.RUnlock()

	switch {
	case !hasNormalizer:
		e.logger.Error().Str("kind", string(source.Kind)).Msg("No normalizer registered")
		return e.fail(sess, source, result, fmt.Errorf("%w: %s", ErrNoNormalizerRegistered, source.Kind))
	case !hasChunker:
		e.logger.Error().Str("strategy", options.ChunkStrategy).Msg("No chunker registered")
		return e.fail(sess, source, result, fmt.Errorf("%w: %s", ErrNoChunkerRegistered, options.ChunkStrategy))
	case !hasEmbedder:
		e.logger.Error().Str("model", options.EmbeddingModel).Msg("No embedder registered")
		return e.fail(sess, source, result, fmt.Errorf("%w: %s", ErrNoEmbedderRegistered, options.EmbeddingModel))
	}

	fingerprint := fingerprintSource(source)

	// Normalize, memoized on the content fingerprint.
	normalizeKey := session.Key(fingerprint, "normalize", nil)
	normalized, normHit, err := sess.Cache().GetOrCompute(normalizeKey, func() (any, error) {
		return normalizer.Normalize(ctx, source)
	})
	if err != nil {
		e.logger.Error().Err(err).Str("source_id", source.ID).Msg("Normalization failed")
		return e.fail(sess, source, result, err)
	}
	normalizeResult := normalized.(*interfaces.NormalizeResult)
	source.ExtractedText = &normalizeResult.Text
	if normalizeResult.Language != "" {
		language := normalizeResult.Language
		source.Language = &language
	}

	// Chunk, memoized on text fingerprint plus chunking parameters. Cached
	// chunks carry the originating source's IDs, so rebind them here.
	chunkParams := map[string]string{
		"strategy": options.ChunkStrategy,
		"size":     strconv.Itoa(options.TargetSize),
		"overlap":  strconv.Itoa(options.Overlap),
	}
	textFingerprint := models.FingerprintString(normalizeResult.Text)
	chunkKey := session.Key(textFingerprint, "chunk", chunkParams)
	chunked, _, err := sess.Cache().GetOrCompute(chunkKey, func() (any, error) {
		return chunker.ChunkText(normalizeResult.Text, source.ID, options.TargetSize, options.Overlap)
	})
	if err != nil {
		e.logger.Error().Err(err).Str("source_id", source.ID).Msg("Chunking failed")
		return e.fail(sess, source, result, err)
	}
	chunks := rebindChunks(chunked.([]*models.Chunk), source.ID)
	result.ChunkCount = len(chunks)

	// Embed, memoized on text fingerprint plus model and the full chunking
	// parameters; the outcome is keyed by chunk ordinal, so two strategies
	// over the same text must never share it. A hit means a re-ingest of
	// identical content and costs no embedding calls.
	embedParams := map[string]string{"model": embedder.GetModelName()}
	embedParams["strategy"] = chunkParams["strategy"]
	embedParams["size"] = chunkParams["size"]
	embedParams["overlap"] = chunkParams["overlap"]
	embedKey := session.Key(textFingerprint, "embed", embedParams)
	embedded, embedHit, err := sess.Cache().GetOrCompute(embedKey, func() (any, error) {
		return e.embedChunks(ctx, chunks, embedder, options.Concurrency)
	})
	if err != nil {
		e.logger.Error().Err(err).Str("source_id", source.ID).Msg("Embedding failed")
		return e.fail(sess, source, result, err)
	}
	outcome := embedded.(*embedOutcome)
	if len(outcome.failedOrdinals) > 0 {
		// Keep only complete batches memoized so a later ingest of the
		// same content retries the failed chunks.
		sess.Cache().Delete(embedKey)
	}
	result.FailedChunkIDs = rebindChunkIDs(outcome.failedOrdinals, source.ID)
	result.CacheHit = normHit && embedHit

	if err := ctx.Err(); err != nil {
		e.logger.Warn().Str("source_id", source.ID).Msg("Ingest cancelled before commit")
		return e.fail(sess, source, result, fmt.Errorf("%w: %v", ErrIngestCancelled, err))
	}

	// Commit: chunks into the store, vectors into the index, in one batch.
	entries := make([]index.Entry, 0, len(outcome.vectors))
	for ordinal, vector := range outcome.vectors {
		entries = append(entries, index.Entry{
			Chunk:     chunks[ordinal],
			SourceSeq: source.Sequence,
			Vector:    vector,
		})
	}
	if len(entries) > 0 {
		if err := sess.Index().AddBatch(embedder.GetModelName(), entries); err != nil {
			e.logger.Error().Err(err).Str("source_id", source.ID).Msg("Index commit failed")
			return e.fail(sess, source, result, err)
		}
	}
	sess.PutChunks(chunks)

	now := time.Now().UTC()
	source.Status = models.StatusNormalized
	source.NormalizedAt = &now
	source.FailureReason = nil

	result.Status = models.StatusNormalized
	result.IndexedCount = len(entries)
	e.logger.Info().
		Str("source_id", source.ID).
		Int("chunks", result.ChunkCount).
		Int("indexed", result.IndexedCount).
		Bool("cache_hit", result.CacheHit).
		Msg("Source ingested")
	return result
}

// IngestAll processes independent sources concurrently. Results are returned
// in input order; one source failing never aborts its siblings.
func (e *IngestEngine) IngestAll(
	ctx context.Context,
	sess *session.Session,
	sources []*models.Source,
	options *interfaces.ProcessingOptions,
) []*interfaces.IngestResult {
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	// Register up front so ingestion sequence follows input order even
	// though processing is concurrent.
	for _, source := range sources {
		if _, ok := sess.GetSource(source.ID); !ok {
			sess.AddSource(source)
		}
	}

	results := make([]*interfaces.IngestResult, len(sources))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source *models.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.IngestSource(ctx, sess, source, options)
		}(i, source)
	}
	wg.Wait()
	return results
}

// RebuildIndex re-embeds every stored chunk of the session's normalized
// sources and commits them to the (empty) session index. Used after restoring
// a session from a snapshot, where vectors are not persisted.
func (e *IngestEngine) RebuildIndex(
	ctx context.Context,
	sess *session.Session,
	embedder interfaces.Embedder,
	concurrency int,
) error {
	for _, sourceID := range sess.NormalizedSourceIDs() {
		source, ok := sess.GetSource(sourceID)
		if !ok {
			continue
		}
		chunks := sess.ChunksForSource(sourceID)
		if len(chunks) == 0 {
			continue
		}
		outcome, err := e.embedChunks(ctx, chunks, embedder, concurrency)
		if err != nil {
			return err
		}
		entries := make([]index.Entry, 0, len(outcome.vectors))
		for ordinal, vector := range outcome.vectors {
			entries = append(entries, index.Entry{
				Chunk:     chunks[ordinal],
				SourceSeq: source.Sequence,
				Vector:    vector,
			})
		}
		if len(entries) == 0 {
			continue
		}
		if err := sess.Index().AddBatch(embedder.GetModelName(), entries); err != nil {
			return err
		}
	}
	return nil
}

type embedOutcome struct {
	// vectors maps chunk ordinal to its embedding.
	vectors        map[int][]float32
	failedOrdinals []int
}

type embedJob struct {
	ordinal int
	text    string
}

type embedResult struct {
	ordinal int
	vector  []float32
	err     error
}

// embedChunks runs the embedding worker pool. A chunk over the embedder's
// token budget or one that fails to embed is reported and skipped; embeddings
// are never retried. A cancelled context fails the whole batch.
func (e *IngestEngine) embedChunks(
	ctx context.Context,
	chunks []models.Chunk,
	embedder interfaces.Embedder,
	concurrency int,
) (*embedOutcome, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	jobChan := make(chan embedJob, len(chunks))
	resultChan := make(chan embedResult, len(chunks))

	for i := 0; i < concurrency; i++ {
		go e.embedWorker(ctx, jobChan, resultChan, embedder)
	}

	outcome := &embedOutcome{vectors: make(map[int][]float32)}
	maxTokens := embedder.GetMaxTokens()
	jobs := 0
	for _, chunk := range chunks {
		if maxTokens > 0 && chunk.TokenCount != nil && *chunk.TokenCount > maxTokens {
			e.logger.Error().
				Str("chunk_id", chunk.ID).
				Int("tokens", *chunk.TokenCount).
				Int("max_tokens", maxTokens).
				Msg("Chunk exceeds embedder token budget")
			outcome.failedOrdinals = append(outcome.failedOrdinals, chunk.Ordinal)
			continue
		}
		jobChan <- embedJob{ordinal: chunk.Ordinal, text: chunk.Text}
		jobs++
	}
	close(jobChan)

	for i := 0; i < jobs; i++ {
		result := <-resultChan
		if result.err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrIngestCancelled, ctx.Err())
			}
			e.logger.Error().Err(result.err).Int("ordinal", result.ordinal).Msg("Chunk embedding failed")
			outcome.failedOrdinals = append(outcome.failedOrdinals, result.ordinal)
			continue
		}
		outcome.vectors[result.ordinal] = result.vector
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestCancelled, err)
	}
	return outcome, nil
}

func (e *IngestEngine) embedWorker(
	ctx context.Context,
	jobChan <-chan embedJob,
	resultChan chan<- embedResult,
	embedder interfaces.Embedder,
) {
	for job := range jobChan {
		if err := ctx.Err(); err != nil {
			resultChan <- embedResult{ordinal: job.ordinal, err: err}
			continue
		}
		vector, err := embedder.GenerateEmbedding(ctx, job.text)
		resultChan <- embedResult{ordinal: job.ordinal, vector: vector, err: err}
	}
}

func (e *IngestEngine) fail(
	sess *session.Session,
	source *models.Source,
	result *interfaces.IngestResult,
	err error,
) *interfaces.IngestResult {
	reason := err.Error()
	source.Status = models.StatusFailed
	source.FailureReason = &reason
	if stored, ok := sess.GetSource(source.ID); ok && stored != source {
		stored.Status = models.StatusFailed
		stored.FailureReason = &reason
	}
	result.Status = models.StatusFailed
	result.Error = err
	return result
}

// fingerprintSource hashes raw payload bytes, or the URL for link sources.
func fingerprintSource(source *models.Source) string {
	if len(source.RawPayload) > 0 {
		return models.Fingerprint(source.RawPayload)
	}
	if source.RawURL != nil {
		return models.FingerprintString(*source.RawURL)
	}
	return models.FingerprintString(source.ID)
}

// rebindChunks rewrites chunk identity onto the given source. Cached chunk
// slices may belong to an earlier source with identical content.
func rebindChunks(chunks []*models.Chunk, sourceID string) []models.Chunk {
	rebound := make([]models.Chunk, len(chunks))
	for i, chunk := range chunks {
		copied := *chunk
		copied.SourceID = sourceID
		copied.ID = fmt.Sprintf("%s:%d", sourceID, copied.Ordinal)
		rebound[i] = copied
	}
	return rebound
}

func rebindChunkIDs(ordinals []int, sourceID string) []string {
	if len(ordinals) == 0 {
		return nil
	}
	ids := make([]string, len(ordinals))
	for i, ordinal := range ordinals {
		ids[i] = fmt.Sprintf("%s:%d", sourceID, ordinal)
	}
	return ids
}
