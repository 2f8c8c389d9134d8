package usecase

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

// negativeStoreFake is an in-memory NegativeExampleStore.
type negativeStoreFake struct {
	examples []domain.NegativeExample
	nextID   int
	listErr  error
}

func (f *negativeStoreFake) FindByFieldValue(_ context.Context, field, wrongValue string) (*domain.NegativeExample, error) {
	for i := range f.examples {
		if f.examples[i].Field == field && f.examples[i].WrongValue == wrongValue {
			out := f.examples[i]
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "find negative example", errors.New("no row"))
}

func (f *negativeStoreFake) ListActiveByField(_ context.Context, field string) ([]domain.NegativeExample, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.NegativeExample
	for _, e := range f.examples {
		if e.Field == field && e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *negativeStoreFake) Insert(_ context.Context, example *domain.NegativeExample) error {
	f.nextID++
	example.ID = strconv.Itoa(f.nextID)
	f.examples = append(f.examples, *example)
	return nil
}

func (f *negativeStoreFake) IncrementFrequency(_ context.Context, id string, correctValue, reason string) error {
	for i := range f.examples {
		if f.examples[i].ID == id {
			f.examples[i].Frequency++
			if f.examples[i].CorrectValue == "" {
				f.examples[i].CorrectValue = correctValue
			}
			if f.examples[i].Reason == "" {
				f.examples[i].Reason = reason
			}
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "increment", errors.New("no row"))
}

func (f *negativeStoreFake) Deactivate(_ context.Context, id string) error {
	for i := range f.examples {
		if f.examples[i].ID == id {
			f.examples[i].IsActive = false
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "deactivate", errors.New("no row"))
}

func newFeedbackForTest(store *negativeStoreFake) *FeedbackUseCase {
	return NewFeedbackUseCase(store, DefaultFeedbackConfig(), nil)
}

func TestFeedbackBlocksAfterThreeRejections(t *testing.T) {
	store := &negativeStoreFake{}
	uc := newFeedbackForTest(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := uc.RecordRejection(ctx, "name", "Foo Widget", "", "wrong name"); err != nil {
			t.Fatalf("RecordRejection() error = %v", err)
		}
	}
	if len(store.examples) != 1 {
		t.Fatalf("expected one record with incremented frequency, got %d", len(store.examples))
	}
	if store.examples[0].Frequency != 3 {
		t.Fatalf("expected frequency 3, got %d", store.examples[0].Frequency)
	}

	check := uc.Check(ctx, "name", "Foo Widget")
	if !check.IsBlocked {
		t.Fatalf("expected block after three rejections, got %+v", check)
	}
	if check.ConfidenceAdjustment >= 0 {
		t.Fatalf("expected negative adjustment, got %v", check.ConfidenceAdjustment)
	}
	if check.Warning == "" {
		t.Fatalf("expected warning message")
	}

	unrelated := uc.Check(ctx, "name", "Completely Different")
	if unrelated.IsBlocked || unrelated.ConfidenceAdjustment != 0 {
		t.Fatalf("expected no match for unrelated value, got %+v", unrelated)
	}
}

func TestFeedbackPenalizesBelowThreshold(t *testing.T) {
	store := &negativeStoreFake{}
	uc := newFeedbackForTest(store)
	ctx := context.Background()

	if err := uc.RecordRejection(ctx, "name", "Bar Widget", "", ""); err != nil {
		t.Fatalf("RecordRejection() error = %v", err)
	}

	check := uc.Check(ctx, "name", "Bar Widget")
	if check.IsBlocked {
		t.Fatalf("one rejection must not block")
	}
	if check.ConfidenceAdjustment != -0.05 {
		t.Fatalf("expected frequency-proportional penalty, got %v", check.ConfidenceAdjustment)
	}
}

func TestFeedbackRejectsLowSignalInputs(t *testing.T) {
	uc := newFeedbackForTest(&negativeStoreFake{})
	ctx := context.Background()

	if err := uc.RecordRejection(ctx, "name", "ab", "", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short value, got %v", err)
	}
	if err := uc.RecordAnswerFeedback(ctx, "query", "some bad answer", 0.1); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for low-confidence answer feedback, got %v", err)
	}
}

func TestFeedbackBackfillsCorrectValueAndReason(t *testing.T) {
	store := &negativeStoreFake{}
	uc := newFeedbackForTest(store)
	ctx := context.Background()

	if err := uc.RecordRejection(ctx, "name", "Foo Widget", "", ""); err != nil {
		t.Fatalf("RecordRejection() error = %v", err)
	}
	if err := uc.RecordRejection(ctx, "name", "Foo Widget", "Foo Resistor", "off by series"); err != nil {
		t.Fatalf("RecordRejection() error = %v", err)
	}

	got := store.examples[0]
	if got.CorrectValue != "Foo Resistor" || got.Reason != "off by series" {
		t.Fatalf("expected backfilled correct value and reason, got %+v", got)
	}
}

func TestFeedbackAnswerDualOverlapMatch(t *testing.T) {
	store := &negativeStoreFake{}
	uc := newFeedbackForTest(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := uc.RecordAnswerFeedback(ctx, "resistor power rating", "the rating is 5 watts", 0.8); err != nil {
			t.Fatalf("RecordAnswerFeedback() error = %v", err)
		}
	}

	blocked := uc.CheckAnswer(ctx, "resistor power rating", "the rating is 5 watts")
	if !blocked.IsBlocked {
		t.Fatalf("expected answer block at frequency 5, got %+v", blocked)
	}

	// A different query against the same answer must not match: the
	// overlap check is dual.
	other := uc.CheckAnswer(ctx, "capacitor voltage tolerance spec", "the rating is 5 watts")
	if other.IsBlocked || other.ConfidenceAdjustment != 0 {
		t.Fatalf("expected no match for different query, got %+v", other)
	}
}

func TestFeedbackCheckDegradesOnStoreFailure(t *testing.T) {
	store := &negativeStoreFake{listErr: errors.New("db down")}
	uc := newFeedbackForTest(store)

	check := uc.Check(context.Background(), "name", "anything")
	if check.IsBlocked || check.ConfidenceAdjustment != 0 {
		t.Fatalf("expected degraded no-match on store failure, got %+v", check)
	}
}

func TestFeedbackDeactivateStopsMatching(t *testing.T) {
	store := &negativeStoreFake{}
	uc := newFeedbackForTest(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = uc.RecordRejection(ctx, "name", "Foo Widget", "", "")
	}
	if !uc.Check(ctx, "name", "Foo Widget").IsBlocked {
		t.Fatalf("expected block before deactivation")
	}

	if err := uc.Deactivate(ctx, store.examples[0].ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if uc.Check(ctx, "name", "Foo Widget").IsBlocked {
		t.Fatalf("expected no block after deactivation")
	}
}
