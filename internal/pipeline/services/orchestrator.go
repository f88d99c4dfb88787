package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/internal/pipeline/retrievers"
	"github.com/omnirag/omnirag-go/internal/pipeline/retry"
	"github.com/omnirag/omnirag-go/internal/pipeline/session"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoNormalizedSources = errors.New("no normalized sources in session")
	ErrQuestionEmpty       = errors.New("question is empty")
)

// TurnState tracks where an orchestrated operation is in its lifecycle.
type TurnState string

const (
	StateIdle        TurnState = "idle"
	StateRetrieving  TurnState = "retrieving"
	StateGenerating  TurnState = "generating"
	StateTranslating TurnState = "translating"
	StateComplete    TurnState = "complete"
	StateFailed      TurnState = "failed"
)

const (
	defaultTopK          = 4
	defaultHistoryWindow = 8
	defaultChunkBudget   = 12
	generationBackoff    = 2 * time.Second
)

// AnswerResult is the outcome of one question against the session corpus.
type AnswerResult struct {
	Turn      models.ConversationTurn
	State     TurnState
	Retrieved []retrievers.RetrievedChunk
}

// Orchestrator drives summarization and grounded question answering over a
// session's ingested sources.
type Orchestrator struct {
	embedder         interfaces.Embedder
	generator        interfaces.Generator
	translator       interfaces.Translator
	generationPolicy retry.Policy
	logger           zerolog.Logger
}

// NewOrchestrator wires the generation-side capabilities together. Generation
// calls get one retry with backoff; embedding and translation get none.
func NewOrchestrator(
	embedder interfaces.Embedder,
	generator interfaces.Generator,
	translator interfaces.Translator,
) *Orchestrator {
	return &Orchestrator{
		embedder:   embedder,
		generator:  generator,
		translator: translator,
		generationPolicy: retry.Policy{
			MaxAttempts: 2,
			Backoff:     generationBackoff,
		},
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// Summarize produces a markdown summary of every normalized source in the
// session, sampling chunks proportionally when the corpus exceeds the chunk
// budget. The English summary is memoized on the combined source fingerprint;
// translation happens on top of the memoized text.
func (o *Orchestrator) Summarize(
	ctx context.Context,
	sess *session.Session,
	opts *interfaces.SummaryOptions,
) (*models.Summary, error) {
	if opts == nil {
		opts = &interfaces.SummaryOptions{}
	}
	budget := opts.ChunkBudget
	if budget <= 0 {
		budget = defaultChunkBudget
	}

	sourceIDs := sess.NormalizedSourceIDs()
	if len(sourceIDs) == 0 {
		return nil, ErrNoNormalizedSources
	}

	sampled := sampleChunks(sess, sourceIDs, budget)
	if len(sampled) == 0 {
		return nil, ErrNoNormalizedSources
	}

	fingerprints := make([]string, 0, len(sourceIDs))
	for _, sourceID := range sourceIDs {
		if source, ok := sess.GetSource(sourceID); ok && source.ExtractedText != nil {
			fingerprints = append(fingerprints, models.FingerprintString(*source.ExtractedText))
		}
	}
	combined := models.CombinedFingerprint(fingerprints)
	cacheKey := session.Key(combined, "summarize", map[string]string{
		"length": opts.LengthHint,
		"budget": fmt.Sprintf("%d", budget),
	})

	summaryText, _, err := sess.Cache().GetOrCompute(cacheKey, func() (any, error) {
		var parts []string
		for _, chunk := range sampled {
			parts = append(parts, chunk.Text)
		}
		prompt := summaryPrompt(strings.Join(parts, "\n\n"), opts.LengthHint)
		text, genErr := o.generate(ctx, prompt)
		return text, genErr
	})
	if err != nil {
		o.logger.Error().Err(err).Msg("summary generation failed")
		return nil, err
	}

	summary := &models.Summary{
		Text:        summaryText.(string),
		DisplayText: summaryText.(string),
		Language:    "en",
		SourceIDs:   sourceIDs,
		GeneratedAt: time.Now().UTC(),
	}

	if opts.TargetLanguage != "" && opts.TargetLanguage != "en" {
		translated, err := o.translator.Translate(ctx, summary.Text, opts.TargetLanguage)
		if err != nil {
			o.logger.Error().Err(err).Str("language", opts.TargetLanguage).Msg("summary translation failed")
			return nil, err
		}
		summary.DisplayText = translated
		summary.Language = opts.TargetLanguage
	}

	sess.SetSummary(summary)
	return summary, nil
}

// Answer retrieves context for the question, generates a grounded reply, and
// records both turns in the session history. Empty retrieval does not fail
// the question; the answer proceeds ungrounded and is flagged low confidence.
func (o *Orchestrator) Answer(
	ctx context.Context,
	sess *session.Session,
	question string,
	opts *interfaces.AnswerOptions,
) (*AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrQuestionEmpty
	}
	if opts == nil {
		opts = &interfaces.AnswerOptions{}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	window := opts.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}

	result := &AnswerResult{State: StateIdle}

	// Deterministic mode drops conversation history so identical questions
	// over identical context produce identical, cacheable answers.
	var history []models.ConversationTurn
	if !opts.Deterministic {
		history = sess.RecentTurns(window)
	}
	sess.AppendTurn(models.ConversationTurn{
		ID:        uuid.New().String(),
		Role:      "user",
		Text:      question,
		CreatedAt: time.Now().UTC(),
	})

	result.State = StateRetrieving
	var sourceFilter map[string]bool
	if len(opts.SourceFilter) > 0 {
		sourceFilter = make(map[string]bool, len(opts.SourceFilter))
		for _, sourceID := range opts.SourceFilter {
			sourceFilter[sourceID] = true
		}
	}
	retriever := retrievers.NewRetriever(o.embedder, sess.Index(), sess)
	retrieved, err := retriever.Retrieve(ctx, question, topK, sourceFilter)
	if err != nil {
		result.State = StateFailed
		o.logger.Error().Err(err).Msg("retrieval failed")
		return result, err
	}
	result.Retrieved = retrieved

	citedIDs := make([]string, 0, len(retrieved))
	for _, chunk := range retrieved {
		citedIDs = append(citedIDs, chunk.Chunk.ID)
	}

	result.State = StateGenerating
	prompt := chatPrompt(retrieved, history, question)
	var answer string
	if opts.Deterministic {
		cacheKey := session.Key(models.FingerprintString(question), "answer", map[string]string{
			"chunks": strings.Join(citedIDs, ","),
			"model":  o.generator.GetModelName(),
		})
		var cached any
		cached, _, err = sess.Cache().GetOrCompute(cacheKey, func() (any, error) {
			text, genErr := o.generate(ctx, prompt)
			return text, genErr
		})
		if err == nil {
			answer = cached.(string)
		}
	} else {
		answer, err = o.generate(ctx, prompt)
	}
	if err != nil {
		result.State = StateFailed
		o.logger.Error().Err(err).Msg("answer generation failed")
		return result, err
	}

	displayText := answer
	if opts.TargetLanguage != "" && opts.TargetLanguage != "en" {
		result.State = StateTranslating
		displayText, err = o.translator.Translate(ctx, answer, opts.TargetLanguage)
		if err != nil {
			result.State = StateFailed
			o.logger.Error().Err(err).Str("language", opts.TargetLanguage).Msg("answer translation failed")
			return result, err
		}
	}

	turn := models.ConversationTurn{
		ID:            uuid.New().String(),
		Role:          "assistant",
		Text:          answer,
		DisplayText:   displayText,
		CitedChunkIDs: citedIDs,
		LowConfidence: len(retrieved) == 0,
		CreatedAt:     time.Now().UTC(),
	}
	sess.AppendTurn(turn)

	result.Turn = turn
	result.State = StateComplete
	return result, nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := o.generationPolicy.Do(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = o.generator.Generate(ctx, prompt)
		return genErr
	})
	return answer, err
}

// sampleChunks picks up to budget chunks across the given sources, allocating
// slots proportionally to each source's chunk count with a floor of one, then
// spacing the picks evenly within each source.
func sampleChunks(sess *session.Session, sourceIDs []string, budget int) []models.Chunk {
	chunksBySource := make(map[string][]models.Chunk, len(sourceIDs))
	total := 0
	for _, sourceID := range sourceIDs {
		chunks := sess.ChunksForSource(sourceID)
		if len(chunks) == 0 {
			continue
		}
		chunksBySource[sourceID] = chunks
		total += len(chunks)
	}
	if total == 0 {
		return nil
	}
	if total <= budget {
		var all []models.Chunk
		for _, sourceID := range sourceIDs {
			all = append(all, chunksBySource[sourceID]...)
		}
		return all
	}

	var sampled []models.Chunk
	for _, sourceID := range sourceIDs {
		chunks := chunksBySource[sourceID]
		if len(chunks) == 0 {
			continue
		}
		share := budget * len(chunks) / total
		if share < 1 {
			share = 1
		}
		if share > len(chunks) {
			share = len(chunks)
		}
		step := float64(len(chunks)) / float64(share)
		for i := 0; i < share; i++ {
			sampled = append(sampled, chunks[int(float64(i)*step)])
		}
	}
	sort.SliceStable(sampled, func(i, j int) bool {
		if sampled[i].SourceID != sampled[j].SourceID {
			return sampled[i].SourceID < sampled[j].SourceID
		}
		return sampled[i].Ordinal < sampled[j].Ordinal
	})
	return sampled
}
