package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

// UnansweredRepository stores questions the knowledge base could not ground.
type UnansweredRepository struct {
	db *sql.DB
}

func NewUnansweredRepository(db *sql.DB) *UnansweredRepository {
	return &UnansweredRepository{db: db}
}

func (r *UnansweredRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS unanswered_queries (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	location TEXT,
	reason TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	category TEXT,
	condition TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_unanswered_queries_created_at ON unanswered_queries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_unanswered_queries_category ON unanswered_queries(category);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record inserts q. Redelivered events with a known id are ignored.
func (r *UnansweredRepository) Record(ctx context.Context, q domain.UnansweredQuery) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO unanswered_queries (id, text, location, reason, score, category, condition, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`, q.ID, q.Text, nullableString(q.Location), q.Reason, q.Score, nullableString(q.Category), nullableString(q.Condition), q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert unanswered query: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *UnansweredRepository) ListRecent(ctx context.Context, limit int) ([]domain.UnansweredQuery, error) {
	if limit <= 0 {
		return []domain.UnansweredQuery{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, text, COALESCE(location, ''), reason, score, COALESCE(category, ''), COALESCE(condition, ''), created_at
FROM unanswered_queries
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unanswered queries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UnansweredQuery, 0, limit)
	for rows.Next() {
		var q domain.UnansweredQuery
		if err := rows.Scan(
			&q.ID,
			&q.Text,
			&q.Location,
			&q.Reason,
			&q.Score,
			&q.Category,
			&q.Condition,
			&q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unanswered query: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unanswered queries: %w", err)
	}
	return out, nil
}
