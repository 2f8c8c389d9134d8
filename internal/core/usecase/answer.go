package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/kb-retrieval/internal/cache"
	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

// Answer kinds accepted by the synthesizer. Unknown kinds fall back to
// the general plan.
const (
	AnswerKindGeneral       = "general"
	AnswerKindPrice         = "price"
	AnswerKindSpecification = "specification"
	AnswerKindCompliance    = "compliance"
	AnswerKindProcedure     = "procedure"
)

// AnswerConfig tunes candidate selection and synthesis.
type AnswerConfig struct {
	MinSimilarity   float64
	MaxEvidence     int
	HighlightMaxLen int
	Temperature     float64
	MaxTokens       int
}

func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		MinSimilarity:   0.35,
		MaxEvidence:     5,
		HighlightMaxLen: 200,
		Temperature:     0.2,
		MaxTokens:       512,
	}
}

func (c AnswerConfig) normalize() AnswerConfig {
	out := c
	def := DefaultAnswerConfig()
	if out.MinSimilarity <= 0 {
		out.MinSimilarity = def.MinSimilarity
	}
	if out.MaxEvidence <= 0 {
		out.MaxEvidence = def.MaxEvidence
	}
	if out.HighlightMaxLen <= 0 {
		out.HighlightMaxLen = def.HighlightMaxLen
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = def.MaxTokens
	}
	return out
}

// answerPlan is the per-kind retrieval shape: how the query is phrased,
// which reranker preset applies, and whether document chunks are pulled
// in as evidence sources.
type answerPlan struct {
	preset    string
	template  string
	useChunks bool
	limit     int
}

func planForKind(kind string) answerPlan {
	switch kind {
	case AnswerKindPrice:
		return answerPlan{preset: PresetPriceLookup, template: "%s price cost", useChunks: false, limit: 10}
	case AnswerKindSpecification:
		return answerPlan{preset: PresetDescription, template: "%s specifications parameters", useChunks: true, limit: 10}
	case AnswerKindCompliance:
		return answerPlan{preset: PresetClassification, template: "%s compliance certificate standard", useChunks: true, limit: 10}
	case AnswerKindProcedure:
		return answerPlan{preset: PresetDescription, template: "%s procedure instructions", useChunks: true, limit: 10}
	default:
		return answerPlan{preset: PresetGeneral, template: "%s", useChunks: true, limit: 10}
	}
}

func (p answerPlan) query(q string) string {
	return strings.TrimSpace(fmt.Sprintf(p.template, q))
}

// AnswerUseCase extracts or synthesizes a direct answer with ranked
// evidence from the top retrieved passages. With no generative backend
// configured it runs extraction-only; a failing backend degrades to
// extraction rather than failing the request.
type AnswerUseCase struct {
	search    ports.SearchService
	chunks    ports.DocumentChunkStore
	completer ports.Completer
	feedback  ports.FeedbackService
	caches    *cache.Service
	cfg       AnswerConfig
	logger    *slog.Logger
}

func NewAnswerUseCase(
	search ports.SearchService,
	chunks ports.DocumentChunkStore,
	completer ports.Completer,
	feedback ports.FeedbackService,
	caches *cache.Service,
	cfg AnswerConfig,
	logger *slog.Logger,
) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		search:    search,
		chunks:    chunks,
		completer: completer,
		feedback:  feedback,
		caches:    caches,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, query string, kind string, filter domain.SearchFilter) (domain.ExtractedAnswer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ExtractedAnswer{}, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("empty query"))
	}
	if kind == "" {
		kind = AnswerKindGeneral
	}

	cacheKey := []string{"answer", query, kind, filter.Category, filter.Manufacturer}
	if uc.caches != nil {
		if cached, ok := uc.caches.GetAnswer(cacheKey...); ok {
			return cached, nil
		}
	}

	plan := planForKind(kind)
	results, err := uc.search.Search(ctx, plan.query(query), plan.limit, plan.preset, filter)
	if err != nil {
		return domain.ExtractedAnswer{}, fmt.Errorf("answer retrieval: %w", err)
	}

	evidence := uc.gatherEvidence(ctx, query, plan, results)
	if len(evidence) == 0 {
		answer := domain.NotFoundAnswer()
		uc.cacheAnswer(answer, cacheKey)
		return answer, nil
	}

	answer := uc.synthesize(ctx, query, evidence)
	answer = uc.applyNegativeCheck(ctx, query, answer)
	uc.cacheAnswer(answer, cacheKey)
	return answer, nil
}

func (uc *AnswerUseCase) cacheAnswer(answer domain.ExtractedAnswer, key []string) {
	if uc.caches != nil {
		uc.caches.SetAnswer(answer, key...)
	}
}

// gatherEvidence filters retrieval hits by similarity, re-sorts them by
// raw similarity, hydrates document chunks where available, and annotates
// each passage with a highlight. Rerank order decides what is retrieved;
// evidence order is by similarity so index 0 is always the best-supported
// passage and truncation never drops it.
func (uc *AnswerUseCase) gatherEvidence(ctx context.Context, query string, plan answerPlan, results []domain.RerankedResult) []domain.Evidence {
	queryTokens := toTokenSet(query)

	candidates := make([]domain.RerankedResult, 0, len(results))
	for _, res := range results {
		if similaritySignal(res.FusedResult) >= uc.cfg.MinSimilarity {
			candidates = append(candidates, res)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return similaritySignal(candidates[i].FusedResult) > similaritySignal(candidates[j].FusedResult)
	})

	evidence := make([]domain.Evidence, 0, uc.cfg.MaxEvidence)
	for _, res := range candidates {
		similarity := similaritySignal(res.FusedResult)

		text, source := res.Text, res.Title
		if source == "" {
			source = res.ID
		}
		if plan.useChunks && uc.chunks != nil {
			if chunk, err := uc.chunks.GetByID(ctx, res.ID); err == nil && chunk != nil {
				text = chunk.Text
				if chunk.Source != "" {
					source = chunk.Source
				}
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		evidence = append(evidence, domain.Evidence{
			Text:       text,
			Source:     source,
			Similarity: similarity,
			Highlight:  uc.highlight(text, queryTokens),
		})
		if len(evidence) == uc.cfg.MaxEvidence {
			break
		}
	}
	return evidence
}

// highlight picks the sentence with the highest query-term overlap,
// preferring sentences that fit the highlight length limit. A passage
// with no overlapping sentence falls back to its truncated opening.
func (uc *AnswerUseCase) highlight(text string, queryTokens map[string]struct{}) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncateText(text, uc.cfg.HighlightMaxLen)
	}

	best, bestScore := "", -1.0
	for _, sentence := range sentences {
		score := tokenOverlap(queryTokens, toTokenSet(sentence))
		if len(sentence) > uc.cfg.HighlightMaxLen {
			score -= 0.01
		}
		if score > bestScore {
			best, bestScore = sentence, score
		}
	}
	if bestScore <= 0 {
		best = sentences[0]
	}
	return truncateText(best, uc.cfg.HighlightMaxLen)
}

func (uc *AnswerUseCase) synthesize(ctx context.Context, query string, evidence []domain.Evidence) domain.ExtractedAnswer {
	if uc.completer != nil {
		answer, err := uc.generate(ctx, query, evidence)
		if err == nil {
			return answer
		}
		uc.logger.Warn("generative_answer_degraded", "error", err)
	}
	return uc.extract(evidence)
}

const answerSystemPrompt = `You answer questions strictly from the numbered source passages provided.
Rules:
- Use only facts stated in the sources. Never invent details.
- If the sources are insufficient, say so explicitly.
- Keep the answer under 200 words.
- Cite the sources you used as [1], [2], ...`

func (uc *AnswerUseCase) generate(ctx context.Context, query string, evidence []domain.Evidence) (domain.ExtractedAnswer, error) {
	var b strings.Builder
	for i, ev := range evidence {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, ev.Source, ev.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", query)

	text, err := uc.completer.Complete(ctx, answerSystemPrompt, b.String(), uc.cfg.Temperature, uc.cfg.MaxTokens)
	if err != nil {
		return domain.ExtractedAnswer{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ExtractedAnswer{}, errors.New("empty completion")
	}

	confidence := evidence[0].Similarity
	answerType := domain.AnswerSynthesized
	if hasHedging(text) {
		confidence *= 0.6
		answerType = domain.AnswerPartial
	}
	return domain.ExtractedAnswer{
		Text:       text,
		Confidence: clamp01(confidence),
		AnswerType: answerType,
		Evidence:   evidence,
	}, nil
}

// extract builds an extraction-only answer from the best passage.
func (uc *AnswerUseCase) extract(evidence []domain.Evidence) domain.ExtractedAnswer {
	best := evidence[0]
	text := best.Highlight
	if text == "" {
		text = truncateText(best.Text, uc.cfg.HighlightMaxLen)
	}
	confidence := best.Similarity
	if confidence > 0.8 {
		confidence = 0.8
	}
	return domain.ExtractedAnswer{
		Text:       fmt.Sprintf("%s (source: %s)", text, best.Source),
		Confidence: confidence,
		AnswerType: domain.AnswerDirect,
		Evidence:   evidence,
	}
}

// applyNegativeCheck runs the candidate answer through the learned
// negative examples. A block substitutes a disclaimer but keeps the
// evidence so callers can still inspect the passages.
func (uc *AnswerUseCase) applyNegativeCheck(ctx context.Context, query string, answer domain.ExtractedAnswer) domain.ExtractedAnswer {
	if uc.feedback == nil {
		return answer
	}
	check := uc.feedback.CheckAnswer(ctx, query, answer.Text)
	if check.IsBlocked {
		answer.Text = "A similar answer was previously marked incorrect for this question. Please verify against the cited sources."
		answer.Confidence = 0.1
		answer.AnswerType = domain.AnswerPartial
		answer.Warning = check.Warning
		return answer
	}
	if check.ConfidenceAdjustment != 0 {
		answer.Confidence = clamp01(answer.Confidence + check.ConfidenceAdjustment)
		answer.Warning = check.Warning
	}
	return answer
}

var hedgingPhrases = []string{
	"not sure",
	"cannot determine",
	"can't determine",
	"insufficient",
	"no information",
	"not specified",
	"unclear",
	"possibly",
	"might be",
	"may be",
}

func hasHedging(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	out := make([]string, 0, 8)
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// truncateText cuts at a rune boundary, backing up to the previous word
// break when one sits past the midpoint.
func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
