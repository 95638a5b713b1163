package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/newsly/newsly/internal/domain"
)

// ToolRepo reads the tool catalogue admins compose newsletters from.
type ToolRepo struct{ db *sql.DB }

// NewToolRepo creates a Postgres-backed tool repository.
func NewToolRepo(db *sql.DB) *ToolRepo { return &ToolRepo{db: db} }

// GetTools returns the tools with the given ids. Unknown ids are skipped.
func (r *ToolRepo) GetTools(ctx context.Context, ids []string) ([]domain.Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, url, category, pricing, created_at
		FROM tools
		WHERE id = ANY($1::text[])
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get tools: %w", err)
	}
	defer rows.Close()

	var out []domain.Tool
	for rows.Next() {
		var t domain.Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.URL, &t.Category, &t.Pricing, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
