package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

type NegativeExampleRepository struct {
	db *sql.DB
}

func NewNegativeExampleRepository(db *sql.DB) *NegativeExampleRepository {
	return &NegativeExampleRepository{db: db}
}

const negativeColumns = `id, field, pattern, pattern_type, wrong_value,
	COALESCE(correct_value, ''), COALESCE(reason, ''), frequency, is_active, created_at, updated_at`

func (r *NegativeExampleRepository) FindByFieldValue(ctx context.Context, field, wrongValue string) (*domain.NegativeExample, error) {
	query := fmt.Sprintf(`SELECT %s FROM negative_examples WHERE field = $1 AND wrong_value = $2`, negativeColumns)
	example, err := scanNegative(r.db.QueryRowContext(ctx, query, field, wrongValue))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "find negative example",
				fmt.Errorf("field %s", field))
		}
		return nil, fmt.Errorf("find negative example: %w", err)
	}
	return example, nil
}

func (r *NegativeExampleRepository) ListActiveByField(ctx context.Context, field string) ([]domain.NegativeExample, error) {
	query := fmt.Sprintf(`SELECT %s FROM negative_examples WHERE field = $1 AND is_active ORDER BY frequency DESC`, negativeColumns)
	rows, err := r.db.QueryContext(ctx, query, field)
	if err != nil {
		return nil, fmt.Errorf("list negative examples: %w", err)
	}
	defer rows.Close()

	var out []domain.NegativeExample
	for rows.Next() {
		example, err := scanNegative(rows)
		if err != nil {
			return nil, fmt.Errorf("scan negative example: %w", err)
		}
		out = append(out, *example)
	}
	return out, rows.Err()
}

func (r *NegativeExampleRepository) Insert(ctx context.Context, example *domain.NegativeExample) error {
	const query = `
INSERT INTO negative_examples (field, pattern, pattern_type, wrong_value, correct_value, reason, frequency, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $9)
RETURNING id`
	now := time.Now().UTC()
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		example.Field, example.Pattern, string(example.PatternType), example.WrongValue,
		example.CorrectValue, example.Reason, example.Frequency, example.IsActive, now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert negative example: %w", err)
	}
	example.ID = strconv.FormatInt(id, 10)
	example.CreatedAt = now
	example.UpdatedAt = now
	return nil
}

// IncrementFrequency bumps the counter and backfills a missing correct
// value or reason without overwriting existing ones.
func (r *NegativeExampleRepository) IncrementFrequency(ctx context.Context, id string, correctValue, reason string) error {
	const query = `
UPDATE negative_examples SET
	frequency = frequency + 1,
	correct_value = COALESCE(correct_value, NULLIF($2, '')),
	reason = COALESCE(reason, NULLIF($3, '')),
	updated_at = $4
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, correctValue, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment negative example: %w", err)
	}
	return requireRow(result, "increment negative example", id)
}

func (r *NegativeExampleRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE negative_examples SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate negative example: %w", err)
	}
	return requireRow(result, "deactivate negative example", id)
}

func requireRow(result sql.Result, operation, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}

func scanNegative(row rowScanner) (*domain.NegativeExample, error) {
	var (
		example     domain.NegativeExample
		id          int64
		patternType string
	)
	err := row.Scan(
		&id, &example.Field, &example.Pattern, &patternType, &example.WrongValue,
		&example.CorrectValue, &example.Reason, &example.Frequency, &example.IsActive,
		&example.CreatedAt, &example.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	example.ID = strconv.FormatInt(id, 10)
	example.PatternType = domain.PatternType(patternType)
	return &example, nil
}
