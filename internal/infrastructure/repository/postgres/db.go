package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the retrieval tables. The advisory lock serializes
// bootstrap DDL across api/worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS kb_items (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	text_content TEXT NOT NULL,
	manufacturer TEXT,
	category TEXT,
	price_min DOUBLE PRECISION,
	price_max DOUBLE PRECISION,
	extra JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_kb_items_category ON kb_items(category);

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	source TEXT NOT NULL,
	text_content TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id, chunk_index);

CREATE TABLE IF NOT EXISTS negative_examples (
	id BIGSERIAL PRIMARY KEY,
	field TEXT NOT NULL,
	pattern TEXT NOT NULL,
	pattern_type TEXT NOT NULL,
	wrong_value TEXT NOT NULL,
	correct_value TEXT,
	reason TEXT,
	frequency INT NOT NULL DEFAULT 1,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (field, wrong_value)
);

CREATE INDEX IF NOT EXISTS idx_negative_examples_field ON negative_examples(field) WHERE is_active;

CREATE TABLE IF NOT EXISTS quality_scores (
	item_id TEXT PRIMARY KEY,
	score DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
