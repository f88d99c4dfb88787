package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/index"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"

	"github.com/google/uuid"
)

var ErrSourceNotFound = errors.New("source not found")

// Session holds the working state of one ingestion and chat session: the
// source table, chunk store, vector index, result cache, summary, and
// conversation history. All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.RWMutex
	sources map[string]*models.Source
	chunks  map[string]models.Chunk
	nextSeq int
	summary *models.Summary
	history []models.ConversationTurn

	index *index.VectorIndex
	cache *Cache
}

// New creates an empty session.
func New() *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		sources:   make(map[string]*models.Source),
		chunks:    make(map[string]models.Chunk),
		index:     index.NewVectorIndex(),
		cache:     NewCache(),
	}
}

// Restore rebuilds a session from a persisted snapshot. The vector index
// comes back empty; callers that need retrieval re-embed the restored chunks.
func Restore(snapshot *models.SessionSnapshot) *Session {
	s := &Session{
		ID:        snapshot.SessionID,
		CreatedAt: snapshot.CreatedAt,
		sources:   make(map[string]*models.Source, len(snapshot.Sources)),
		chunks:    make(map[string]models.Chunk, len(snapshot.Chunks)),
		index:     index.NewVectorIndex(),
		cache:     NewCache(),
	}
	for i := range snapshot.Sources {
		source := snapshot.Sources[i]
		s.sources[source.ID] = &source
		if source.Sequence >= s.nextSeq {
			s.nextSeq = source.Sequence + 1
		}
	}
	for _, chunk := range snapshot.Chunks {
		s.chunks[chunk.ID] = chunk
	}
	if snapshot.Summary != nil {
		summary := *snapshot.Summary
		s.summary = &summary
	}
	s.history = append(s.history, snapshot.Turns...)
	return s
}

// Index returns the session's vector index.
func (s *Session) Index() *index.VectorIndex { return s.index }

// Cache returns the session's result cache.
func (s *Session) Cache() *Cache { return s.cache }

// AddSource registers a source and assigns its ingestion sequence number.
func (s *Session) AddSource(source *models.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	source.Sequence = s.nextSeq
	s.nextSeq++
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now().UTC()
	}
	s.sources[source.ID] = source
}

// GetSource returns the source with the given ID.
func (s *Session) GetSource(sourceID string) (*models.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	source, ok := s.sources[sourceID]
	return source, ok
}

// Sources returns every registered source in ingestion order.
func (s *Session) Sources() []*models.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sources := make([]*models.Source, 0, len(s.sources))
	for _, source := range s.sources {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Sequence < sources[j].Sequence
	})
	return sources
}

// NormalizedSourceIDs returns the IDs of sources that normalized successfully,
// in ingestion order.
func (s *Session) NormalizedSourceIDs() []string {
	ids := make([]string, 0)
	for _, source := range s.Sources() {
		if source.Status == models.StatusNormalized {
			ids = append(ids, source.ID)
		}
	}
	return ids
}

// PutChunks stores the chunks produced for a source.
func (s *Session) PutChunks(chunks []models.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
	}
}

// GetChunk returns the chunk with the given ID.
func (s *Session) GetChunk(chunkID string) (models.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[chunkID]
	return chunk, ok
}

// ChunksForSource returns a source's chunks ordered by ordinal.
func (s *Session) ChunksForSource(sourceID string) []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]models.Chunk, 0)
	for _, chunk := range s.chunks {
		if chunk.SourceID == sourceID {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Ordinal < chunks[j].Ordinal
	})
	return chunks
}

// RemoveSource drops a source together with its chunks, index entries, and
// cached results. Cached entries are keyed on the raw payload or URL
// fingerprint (normalize) and on the extracted text fingerprint (chunk,
// embed), so both are invalidated. Existing summary and history are left
// untouched.
func (s *Session) RemoveSource(sourceID string) error {
	s.mu.Lock()
	source, ok := s.sources[sourceID]
	if !ok {
		s.mu.Unlock()
		return ErrSourceNotFound
	}
	fingerprints := make([]string, 0, 2)
	if len(source.RawPayload) > 0 {
		fingerprints = append(fingerprints, models.Fingerprint(source.RawPayload))
	} else if source.RawURL != nil && *source.RawURL != "" {
		fingerprints = append(fingerprints, models.FingerprintString(*source.RawURL))
	}
	if source.ExtractedText != nil {
		fingerprints = append(fingerprints, models.FingerprintString(*source.ExtractedText))
	}
	delete(s.sources, sourceID)
	for chunkID, chunk := range s.chunks {
		if chunk.SourceID == sourceID {
			delete(s.chunks, chunkID)
		}
	}
	s.mu.Unlock()

	s.index.RemoveSource(sourceID)
	for _, fingerprint := range fingerprints {
		s.cache.InvalidateFingerprint(fingerprint)
	}
	return nil
}

// AppendTurn records a conversation turn.
func (s *Session) AppendTurn(turn models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
}

// History returns a copy of the full conversation history.
func (s *Session) History() []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]models.ConversationTurn, len(s.history))
	copy(history, s.history)
	return history
}

// RecentTurns returns the last window turns.
func (s *Session) RecentTurns(window int) []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if window <= 0 || len(s.history) == 0 {
		return nil
	}
	start := len(s.history) - window
	if start < 0 {
		start = 0
	}
	turns := make([]models.ConversationTurn, len(s.history)-start)
	copy(turns, s.history[start:])
	return turns
}

// SetSummary records the session summary.
func (s *Session) SetSummary(summary *models.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

// Summary returns the current session summary, if any.
func (s *Session) Summary() *models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Snapshot captures the session state for persistence or export. Raw payloads
// are excluded; only extracted text and derived state survive.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]models.Source, 0, len(s.sources))
	for _, source := range s.sources {
		sources = append(sources, *source)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Sequence < sources[j].Sequence
	})

	chunks := make([]models.Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SourceID != chunks[j].SourceID {
			return chunks[i].SourceID < chunks[j].SourceID
		}
		return chunks[i].Ordinal < chunks[j].Ordinal
	})

	turns := make([]models.ConversationTurn, len(s.history))
	copy(turns, s.history)

	snapshot := models.SessionSnapshot{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		Sources:   sources,
		Chunks:    chunks,
		Turns:     turns,
	}
	if s.summary != nil {
		summary := *s.summary
		snapshot.Summary = &summary
	}
	return snapshot
}
