package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
	"github.com/kirillkom/kb-retrieval/internal/core/ports"
)

// FeedbackConfig tunes the negative-example learner. Learning is monotonic
// with no decay; administrative deactivation is the only removal path.
type FeedbackConfig struct {
	// MinValueLength rejects low-signal rejections outright.
	MinValueLength int
	// MinAnswerConfidence rejects answer feedback when the original
	// answer was already low confidence.
	MinAnswerConfidence float64

	BlockThreshold       int
	AnswerBlockThreshold int

	// PenaltyPerFrequency scales the confidence penalty of a matched but
	// not-yet-blocking example.
	PenaltyPerFrequency float64
	// MaxBlockPenalty caps the frequency-scaled penalty of a block.
	MaxBlockPenalty float64

	// SemanticThreshold is the dual word-overlap floor for answer matches.
	SemanticThreshold float64
}

func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		MinValueLength:       3,
		MinAnswerConfidence:  0.3,
		BlockThreshold:       3,
		AnswerBlockThreshold: 5,
		PenaltyPerFrequency:  0.05,
		MaxBlockPenalty:      0.5,
		SemanticThreshold:    0.6,
	}
}

func (c FeedbackConfig) normalize() FeedbackConfig {
	out := c
	def := DefaultFeedbackConfig()
	if out.MinValueLength <= 0 {
		out.MinValueLength = def.MinValueLength
	}
	if out.MinAnswerConfidence <= 0 {
		out.MinAnswerConfidence = def.MinAnswerConfidence
	}
	if out.BlockThreshold <= 0 {
		out.BlockThreshold = def.BlockThreshold
	}
	if out.AnswerBlockThreshold <= 0 {
		out.AnswerBlockThreshold = def.AnswerBlockThreshold
	}
	if out.PenaltyPerFrequency <= 0 {
		out.PenaltyPerFrequency = def.PenaltyPerFrequency
	}
	if out.MaxBlockPenalty <= 0 {
		out.MaxBlockPenalty = def.MaxBlockPenalty
	}
	if out.SemanticThreshold <= 0 {
		out.SemanticThreshold = def.SemanticThreshold
	}
	return out
}

// FeedbackUseCase is the online negative-example learner: it records
// rejected suggestions and downvoted answers, and suppresses repeats.
type FeedbackUseCase struct {
	store  ports.NegativeExampleStore
	cfg    FeedbackConfig
	logger *slog.Logger
}

func NewFeedbackUseCase(store ports.NegativeExampleStore, cfg FeedbackConfig, logger *slog.Logger) *FeedbackUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackUseCase{
		store:  store,
		cfg:    cfg.normalize(),
		logger: logger,
	}
}

// RecordRejection learns from a rejected field suggestion. An identical
// (field, value) pair increments frequency and backfills a missing
// correct value or reason instead of duplicating the record.
func (uc *FeedbackUseCase) RecordRejection(ctx context.Context, field, wrongValue, correctValue, reason string) error {
	field = strings.TrimSpace(field)
	wrongValue = strings.TrimSpace(wrongValue)
	if field == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record rejection", errors.New("field is required"))
	}
	if len(wrongValue) < uc.cfg.MinValueLength {
		return domain.WrapError(domain.ErrInvalidInput, "record rejection",
			fmt.Errorf("value too short to learn from: %q", wrongValue))
	}

	return uc.learn(ctx, &domain.NegativeExample{
		Field:        field,
		Pattern:      wrongValue,
		PatternType:  domain.PatternExact,
		WrongValue:   wrongValue,
		CorrectValue: strings.TrimSpace(correctValue),
		Reason:       strings.TrimSpace(reason),
	})
}

// RecordAnswerFeedback learns from a downvoted answer, stored as a
// (query, bad answer) pair under the reserved answer bucket. Feedback on
// answers that were already low confidence carries no signal and is
// rejected.
func (uc *FeedbackUseCase) RecordAnswerFeedback(ctx context.Context, query, badAnswer string, originalConfidence float64) error {
	query = strings.TrimSpace(query)
	badAnswer = strings.TrimSpace(badAnswer)
	if query == "" || len(badAnswer) < uc.cfg.MinValueLength {
		return domain.WrapError(domain.ErrInvalidInput, "record answer feedback", errors.New("query and answer are required"))
	}
	if originalConfidence < uc.cfg.MinAnswerConfidence {
		return domain.WrapError(domain.ErrInvalidInput, "record answer feedback",
			fmt.Errorf("original confidence %.2f below learning floor", originalConfidence))
	}

	return uc.learn(ctx, &domain.NegativeExample{
		Field:       domain.AnswerField,
		Pattern:     query,
		PatternType: domain.PatternSemantic,
		WrongValue:  badAnswer,
	})
}

func (uc *FeedbackUseCase) learn(ctx context.Context, example *domain.NegativeExample) error {
	existing, err := uc.store.FindByFieldValue(ctx, example.Field, example.WrongValue)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup negative example: %w", err)
	}
	if existing != nil {
		if err := uc.store.IncrementFrequency(ctx, existing.ID, example.CorrectValue, example.Reason); err != nil {
			return fmt.Errorf("increment negative example: %w", err)
		}
		return nil
	}

	example.Frequency = 1
	example.IsActive = true
	if err := uc.store.Insert(ctx, example); err != nil {
		return fmt.Errorf("insert negative example: %w", err)
	}
	return nil
}

// Check matches a candidate value against the active negative examples of
// a field. A store or matcher failure degrades to "no match".
func (uc *FeedbackUseCase) Check(ctx context.Context, field, value string) domain.NegativeCheck {
	examples, err := uc.store.ListActiveByField(ctx, field)
	if err != nil {
		uc.logger.Warn("negative_check_degraded", "field", field, "error", err)
		return domain.NegativeCheck{}
	}

	for _, example := range examples {
		if !uc.matches(example, value) {
			continue
		}
		return uc.verdict(example, uc.cfg.BlockThreshold, field)
	}
	return domain.NegativeCheck{}
}

// CheckAnswer matches a candidate answer with its query against the stored
// (query, bad answer) pairs using dual word-overlap similarity.
func (uc *FeedbackUseCase) CheckAnswer(ctx context.Context, query, answer string) domain.NegativeCheck {
	examples, err := uc.store.ListActiveByField(ctx, domain.AnswerField)
	if err != nil {
		uc.logger.Warn("negative_check_degraded", "field", domain.AnswerField, "error", err)
		return domain.NegativeCheck{}
	}

	queryTokens := toTokenSet(query)
	answerTokens := toTokenSet(answer)
	for _, example := range examples {
		queryOverlap := tokenOverlap(toTokenSet(example.Pattern), queryTokens)
		answerOverlap := tokenOverlap(toTokenSet(example.WrongValue), answerTokens)
		if queryOverlap < uc.cfg.SemanticThreshold || answerOverlap < uc.cfg.SemanticThreshold {
			continue
		}
		return uc.verdict(example, uc.cfg.AnswerBlockThreshold, domain.AnswerField)
	}
	return domain.NegativeCheck{}
}

// Deactivate soft-disables a record; negative examples are never hard
// deleted automatically.
func (uc *FeedbackUseCase) Deactivate(ctx context.Context, id string) error {
	if err := uc.store.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate negative example: %w", err)
	}
	return nil
}

func (uc *FeedbackUseCase) matches(example domain.NegativeExample, value string) bool {
	switch example.PatternType {
	case domain.PatternExact:
		return strings.EqualFold(strings.TrimSpace(value), example.WrongValue)
	case domain.PatternContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(example.Pattern))
	case domain.PatternRegex:
		re, err := regexp.Compile(example.Pattern)
		if err != nil {
			uc.logger.Warn("negative_pattern_invalid", "id", example.ID, "error", err)
			return false
		}
		return re.MatchString(value)
	case domain.PatternSemantic:
		return tokenOverlap(toTokenSet(example.WrongValue), toTokenSet(value)) >= uc.cfg.SemanticThreshold
	default:
		return false
	}
}

func (uc *FeedbackUseCase) verdict(example domain.NegativeExample, blockThreshold int, field string) domain.NegativeCheck {
	if example.Frequency >= blockThreshold {
		penalty := uc.cfg.PenaltyPerFrequency * float64(example.Frequency)
		if penalty > uc.cfg.MaxBlockPenalty {
			penalty = uc.cfg.MaxBlockPenalty
		}
		warning := fmt.Sprintf("value for %q was rejected %d times before", field, example.Frequency)
		if example.Reason != "" {
			warning += ": " + example.Reason
		}
		return domain.NegativeCheck{
			IsBlocked:            true,
			ConfidenceAdjustment: -penalty,
			Warning:              warning,
			MatchedID:            example.ID,
		}
	}
	return domain.NegativeCheck{
		ConfidenceAdjustment: -uc.cfg.PenaltyPerFrequency * float64(example.Frequency),
		MatchedID:            example.ID,
	}
}
