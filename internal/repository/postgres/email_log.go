package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/newsly/newsly/internal/domain"
)

// planChunk bounds the number of rows inserted per statement.
const planChunk = 5000

// EmailLogRepo implements dispatch.LogRepository against PostgreSQL.
// The unique (newsletter_id, subscriber_id) constraint is the dedup key
// every delivery is claimed against.
type EmailLogRepo struct{ db *sql.DB }

// NewEmailLogRepo creates a Postgres-backed email log repository.
func NewEmailLogRepo(db *sql.DB) *EmailLogRepo { return &EmailLogRepo{db: db} }

func (r *EmailLogRepo) Plan(ctx context.Context, nl *domain.Newsletter, emailType domain.EmailType, subscriberIDs []string) (int, error) {
	inserted := 0
	for start := 0; start < len(subscriberIDs); start += planChunk {
		chunk := subscriberIDs[start:min(start+planChunk, len(subscriberIDs))]
		ids := make([]string, len(chunk))
		for i := range chunk {
			ids[i] = uuid.New().String()
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO email_logs (id, subscriber_id, newsletter_id, email_type, subject, status)
			SELECT l.id, l.subscriber_id, $3, $4, $5, 'PENDING'
			FROM unnest($1::text[], $2::text[]) AS l(id, subscriber_id)
			ON CONFLICT (newsletter_id, subscriber_id) DO NOTHING
		`, pq.Array(ids), pq.Array(chunk), nl.ID, string(emailType), nl.Subject)
		if err != nil {
			return inserted, fmt.Errorf("plan email logs: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

func (r *EmailLogRepo) Claim(ctx context.Context, newsletterID, subscriberID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = 'SENDING', attempts = attempts + 1, updated_at = NOW()
		WHERE newsletter_id = $1 AND subscriber_id = $2 AND status = 'PENDING'
	`, newsletterID, subscriberID)
	if err != nil {
		return false, fmt.Errorf("claim email log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim email log: %w", err)
	}
	return n == 1, nil
}

func (r *EmailLogRepo) MarkSent(ctx context.Context, newsletterID, subscriberID, providerMessageID string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = 'SENT', provider_message_id = $3, sent_at = $4, error_message = '', updated_at = NOW()
		WHERE newsletter_id = $1 AND subscriber_id = $2 AND status IN ('PENDING', 'SENDING')
	`, newsletterID, subscriberID, providerMessageID, sentAt)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

func (r *EmailLogRepo) MarkFailed(ctx context.Context, newsletterID, subscriberID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = 'FAILED', error_message = $3, updated_at = NOW()
		WHERE newsletter_id = $1 AND subscriber_id = $2 AND status IN ('PENDING', 'SENDING')
	`, newsletterID, subscriberID, reason)
	if err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	return nil
}

func (r *EmailLogRepo) Tally(ctx context.Context, newsletterID string) (domain.LogTally, error) {
	var t domain.LogTally
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM email_logs WHERE newsletter_id = $1 GROUP BY status`, newsletterID)
	if err != nil {
		return t, fmt.Errorf("tally email logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status domain.EmailLogStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return t, fmt.Errorf("scan tally: %w", err)
		}
		switch status {
		case domain.EmailPending:
			t.Pending = n
		case domain.EmailSending:
			t.Sending = n
		case domain.EmailSent, domain.EmailDelivered:
			t.Sent += n
		case domain.EmailFailed:
			t.Failed = n
		}
	}
	return t, rows.Err()
}

func (r *EmailLogRepo) ListByNewsletter(ctx context.Context, newsletterID string) ([]domain.EmailLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subscriber_id, newsletter_id, email_type, subject, status, error_message,
		       provider_message_id, attempts, sent_at, created_at, updated_at
		FROM email_logs
		WHERE newsletter_id = $1
		ORDER BY created_at, subscriber_id
	`, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailLog
	for rows.Next() {
		var (
			l      domain.EmailLog
			sentAt sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.SubscriberID, &l.NewsletterID, &l.EmailType, &l.Subject, &l.Status,
			&l.ErrorMessage, &l.ProviderMessageID, &l.Attempts, &sentAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		l.SentAt = timePtr(sentAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *EmailLogRepo) TouchRecipients(ctx context.Context, newsletterID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers s
		SET last_email_sent = $2
		FROM email_logs l
		WHERE l.subscriber_id = s.id AND l.newsletter_id = $1 AND l.status = 'SENT'
	`, newsletterID, at)
	if err != nil {
		return 0, fmt.Errorf("touch recipients: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ResetStale leaves updated_at alone so the same sweep can redeliver.
func (r *EmailLogRepo) ResetStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = 'PENDING'
		WHERE status = 'SENDING' AND updated_at < $1 AND attempts < $2
	`, cutoff, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("reset stale email logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *EmailLogRepo) AbandonStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = 'FAILED',
		    error_message = 'delivery abandoned after ' || attempts || ' attempts',
		    updated_at = NOW()
		WHERE status = 'SENDING' AND updated_at < $1 AND attempts >= $2
	`, cutoff, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("abandon stale email logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *EmailLogRepo) TakePending(ctx context.Context, newsletterID string, cutoff, at time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE email_logs SET updated_at = $3
		WHERE newsletter_id = $1 AND status = 'PENDING' AND updated_at < $2
		RETURNING subscriber_id
	`, newsletterID, cutoff, at)
	if err != nil {
		return nil, fmt.Errorf("take pending email logs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending email log: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
