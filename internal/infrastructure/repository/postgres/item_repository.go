package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, title, text_content, COALESCE(manufacturer, ''), COALESCE(category, ''),
	COALESCE(price_min, 0), COALESCE(price_max, 0), extra, updated_at`

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.KBItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM kb_items WHERE id = $1`, itemColumns)
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get kb item", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("get kb item: %w", err)
	}
	return item, nil
}

func (r *ItemRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.KBItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM kb_items WHERE id = ANY($1::text[])`, itemColumns)
	rows, err := r.db.QueryContext(ctx, query, textArray(ids))
	if err != nil {
		return nil, fmt.Errorf("get kb items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.KBItem, 0, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kb item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (r *ItemRepository) Upsert(ctx context.Context, item *domain.KBItem) error {
	extra, err := json.Marshal(item.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("marshal item extra: %w", err)
	}
	const query = `
INSERT INTO kb_items (id, title, text_content, manufacturer, category, price_min, price_max, extra, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, 0), NULLIF($7, 0), $8, $9)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	text_content = EXCLUDED.text_content,
	manufacturer = EXCLUDED.manufacturer,
	category = EXCLUDED.category,
	price_min = EXCLUDED.price_min,
	price_max = EXCLUDED.price_max,
	extra = EXCLUDED.extra,
	updated_at = EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.Title, item.Text,
		item.Metadata.Manufacturer, item.Metadata.Category,
		item.Metadata.PriceMin, item.Metadata.PriceMax,
		extra, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert kb item: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// textArray renders a Postgres text[] literal; values pass through the
// driver as a single parameter and are cast server-side.
func textArray(values []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func scanItem(row rowScanner) (*domain.KBItem, error) {
	var (
		item  domain.KBItem
		extra []byte
	)
	err := row.Scan(
		&item.ID, &item.Title, &item.Text,
		&item.Metadata.Manufacturer, &item.Metadata.Category,
		&item.Metadata.PriceMin, &item.Metadata.PriceMax,
		&extra, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &item.Metadata.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal item extra: %w", err)
		}
	}
	return &item, nil
}
