package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/newsletter"
)

const newsletterColumns = `id, subject, preview_text, content_html, content_json, status, sent_at,
	       recipient_count, expected_recipients, open_rate, click_rate, topic, target_tier,
	       ai_generated, error_message, created_at, updated_at`

// NewsletterRepo implements newsletter.Repository against PostgreSQL.
type NewsletterRepo struct{ db *sql.DB }

// NewNewsletterRepo creates a Postgres-backed newsletter repository.
func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{db: db} }

func scanNewsletter(row rowScanner) (*domain.Newsletter, error) {
	var (
		n         domain.Newsletter
		sentAt    sql.NullTime
		openRate  sql.NullFloat64
		clickRate sql.NullFloat64
	)
	err := row.Scan(
		&n.ID, &n.Subject, &n.PreviewText, &n.ContentHTML, &n.ContentJSON, &n.Status, &sentAt,
		&n.RecipientCount, &n.ExpectedRecipients, &openRate, &clickRate, &n.Topic, &n.TargetTier,
		&n.AIGenerated, &n.ErrorMessage, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.SentAt = timePtr(sentAt)
	n.OpenRate = floatPtr(openRate)
	n.ClickRate = floatPtr(clickRate)
	return &n, nil
}

func (r *NewsletterRepo) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	n, err := scanNewsletter(r.db.QueryRowContext(ctx,
		`SELECT `+newsletterColumns+` FROM newsletters WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, newsletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	return n, nil
}

func (r *NewsletterRepo) List(ctx context.Context, f newsletter.ListFilter) ([]domain.Newsletter, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"TRUE"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.TargetTier != "" {
		add("target_tier = $%d", string(f.TargetTier))
	}
	if f.Topic != "" {
		add("topic = $%d", string(f.Topic))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM newsletters WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count newsletters: %w", err)
	}

	q := `SELECT ` + newsletterColumns + ` FROM newsletters WHERE ` + cond +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list newsletters: %w", err)
	}
	defer rows.Close()

	var out []domain.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan newsletter: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate newsletters: %w", err)
	}
	return out, total, nil
}

func (r *NewsletterRepo) Create(ctx context.Context, n *domain.Newsletter) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletters
			(id, subject, preview_text, content_html, content_json, status,
			 topic, target_tier, ai_generated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.ID, n.Subject, n.PreviewText, n.ContentHTML, n.ContentJSON, string(n.Status),
		string(n.Topic), string(n.TargetTier), n.AIGenerated, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create newsletter: %w", err)
	}
	return nil
}

func (r *NewsletterRepo) Transition(ctx context.Context, id string, from, to domain.NewsletterStatus, u newsletter.TransitionFields) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletters
		SET status = $3,
		    sent_at = COALESCE($4, sent_at),
		    recipient_count = COALESCE($5, recipient_count),
		    error_message = COALESCE($6, error_message),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), u.SentAt, u.RecipientCount, u.ErrorMessage)
	if err != nil {
		return fmt.Errorf("transition newsletter: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := rowExists(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM newsletters WHERE id = $1)`, id)
	if err != nil {
		return fmt.Errorf("transition newsletter: %w", err)
	}
	if !ok {
		return newsletter.ErrNotFound
	}
	return newsletter.ErrInvalidTransition
}

func (r *NewsletterRepo) SetExpectedRecipients(ctx context.Context, id string, n int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE newsletters SET expected_recipients = $2, updated_at = NOW() WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("set expected recipients: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return newsletter.ErrNotFound
	}
	return nil
}

func (r *NewsletterRepo) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Newsletter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+newsletterColumns+` FROM newsletters
		 WHERE status = 'SENDING' AND updated_at < $1
		 ORDER BY updated_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale newsletters: %w", err)
	}
	defer rows.Close()

	var out []domain.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan newsletter: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
