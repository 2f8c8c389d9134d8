package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.DocumentChunk, error) {
	const query = `
SELECT document_id, chunk_index, source, text_content, updated_at
FROM document_chunks WHERE id = $1`

	var chunk domain.DocumentChunk
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Source, &chunk.Text, &chunk.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document chunk", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("get document chunk: %w", err)
	}
	return &chunk, nil
}

func (r *ChunkRepository) Upsert(ctx context.Context, id string, chunk *domain.DocumentChunk) error {
	const query = `
INSERT INTO document_chunks (id, document_id, chunk_index, source, text_content, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	chunk_index = EXCLUDED.chunk_index,
	source = EXCLUDED.source,
	text_content = EXCLUDED.text_content,
	updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		id, chunk.DocumentID, chunk.ChunkIndex, chunk.Source, chunk.Text, chunk.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document chunk: %w", err)
	}
	return nil
}
