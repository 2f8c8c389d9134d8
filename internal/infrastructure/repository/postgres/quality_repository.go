package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QualityScoreRepository serves externally computed quality scores. A
// missing row reports found=false; the reranker falls back to its
// neutral default.
type QualityScoreRepository struct {
	db *sql.DB
}

func NewQualityScoreRepository(db *sql.DB) *QualityScoreRepository {
	return &QualityScoreRepository{db: db}
}

func (r *QualityScoreRepository) ScoreOf(ctx context.Context, id string) (float64, bool, error) {
	const query = `SELECT score FROM quality_scores WHERE item_id = $1`

	var score float64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get quality score: %w", err)
	}
	return score, true, nil
}

func (r *QualityScoreRepository) SetScore(ctx context.Context, id string, score float64) error {
	const query = `
INSERT INTO quality_scores (item_id, score, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (item_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, id, score, time.Now().UTC()); err != nil {
		return fmt.Errorf("set quality score: %w", err)
	}
	return nil
}
