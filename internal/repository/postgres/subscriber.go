package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/segment"
	"github.com/newsly/newsly/internal/service/subscriber"
)

const subscriberColumns = `id, email, COALESCE(name, ''), tier, topics, daily_digest, marketing_emails,
	       unsubscribed, unsubscribed_at, COALESCE(payment_customer_id, ''), last_email_sent,
	       subscribed_at, created_at, updated_at`

// SubscriberRepo implements subscriber.Repository and segment.Source
// against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	var (
		s              domain.Subscriber
		topics         []string
		unsubscribedAt sql.NullTime
		lastEmailSent  sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.Email, &s.Name, &s.Tier, pq.Array(&topics), &s.DailyDigest, &s.MarketingEmails,
		&s.Unsubscribed, &unsubscribedAt, &s.PaymentCustomerID, &lastEmailSent,
		&s.SubscribedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Topics = make([]domain.Topic, len(topics))
	for i, t := range topics {
		s.Topics[i] = domain.Topic(t)
	}
	s.UnsubscribedAt = timePtr(unsubscribedAt)
	s.LastEmailSent = timePtr(lastEmailSent)
	return &s, nil
}

func topicStrings(ts []domain.Topic) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func (r *SubscriberRepo) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber by email: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) List(ctx context.Context, f subscriber.ListFilter) ([]domain.Subscriber, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	where := []string{"TRUE"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Tier != "" {
		add("tier = $%d", string(f.Tier))
	}
	if f.Topic != "" {
		add("$%d = ANY(topics)", string(f.Topic))
	}
	if f.Unsubscribed != nil {
		add("unsubscribed = $%d", *f.Unsubscribed)
	}
	if f.Search != "" {
		add("(email ILIKE $%[1]d OR name ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	q := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE ` + cond +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	out, err := collectSubscribers(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// FindSubscribers evaluates a segment query in SQL.
func (r *SubscriberRepo) FindSubscribers(ctx context.Context, q segment.Query) ([]domain.Subscriber, error) {
	where := []string{"unsubscribed = FALSE"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.RequireDigest {
		where = append(where, "daily_digest = TRUE")
	}
	if len(q.Tiers) > 0 {
		tiers := make([]string, len(q.Tiers))
		for i, t := range q.Tiers {
			tiers[i] = string(t)
		}
		add("tier = ANY($%d::text[])", pq.Array(tiers))
	}
	if q.Topic != "" {
		add("$%d = ANY(topics)", string(q.Topic))
	}
	if len(q.AnyTopics) > 0 {
		add("topics && $%d::text[]", pq.Array(topicStrings(q.AnyTopics)))
	}
	if len(q.IDs) > 0 {
		add("id = ANY($%d::text[])", pq.Array(q.IDs))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}
	defer rows.Close()
	return collectSubscribers(rows)
}

func collectSubscribers(rows *sql.Rows) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return out, nil
}

func (r *SubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers
			(id, email, name, tier, topics, daily_digest, marketing_emails,
			 unsubscribed, subscribed_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.Email, s.Name, string(s.Tier), pq.Array(topicStrings(s.Topics)), s.DailyDigest, s.MarketingEmails,
		s.Unsubscribed, s.SubscribedAt, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return subscriber.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

func (r *SubscriberRepo) Update(ctx context.Context, s *domain.Subscriber) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		SET email = $2, name = NULLIF($3, ''), tier = $4, topics = $5,
		    daily_digest = $6, marketing_emails = $7, unsubscribed = $8, unsubscribed_at = $9,
		    payment_customer_id = NULLIF($10, ''), updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Email, s.Name, string(s.Tier), pq.Array(topicStrings(s.Topics)),
		s.DailyDigest, s.MarketingEmails, s.Unsubscribed, s.UnsubscribedAt, s.PaymentCustomerID)
	if isUniqueViolation(err) {
		return subscriber.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}
