package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/billing"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/segment"
	"github.com/newsly/newsly/internal/service/subscriber"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var subscriberCols = []string{
	"id", "email", "name", "tier", "topics", "daily_digest", "marketing_emails",
	"unsubscribed", "unsubscribed_at", "payment_customer_id", "last_email_sent",
	"subscribed_at", "created_at", "updated_at",
}

func TestSubscriberGetScansTopics(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM subscribers WHERE id = \$1`).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows(subscriberCols).AddRow(
			"sub-1", "ada@example.com", "Ada", "PRO", "{crypto,ai,science}", true, true,
			false, nil, "", now, now, now, now,
		))

	s, err := NewSubscriberRepo(db).Get(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, s.Tier)
	assert.Equal(t, []domain.Topic{"crypto", "ai", "science"}, s.Topics)
	assert.Nil(t, s.UnsubscribedAt)
	require.NotNil(t, s.LastEmailSent)
	assert.True(t, s.LastEmailSent.Equal(now))
}

func TestSubscriberGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM subscribers WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := NewSubscriberRepo(db).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, subscriber.ErrNotFound)
}

func TestSubscriberCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO subscribers`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := NewSubscriberRepo(db).Create(context.Background(), &domain.Subscriber{
		ID: "sub-1", Email: "ada@example.com", Tier: domain.TierFree,
	})
	assert.ErrorIs(t, err, subscriber.ErrAlreadyExists)
}

func TestSubscriberDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM subscribers WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, NewSubscriberRepo(db).Delete(context.Background(), "ghost"), subscriber.ErrNotFound)
}

func TestFindSubscribersBuildsSegmentFilter(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE unsubscribed = FALSE AND daily_digest = TRUE AND tier = ANY\(\$1::text\[\]\) AND \$2 = ANY\(topics\) ORDER BY created_at`).
		WithArgs(sqlmock.AnyArg(), "crypto").
		WillReturnRows(sqlmock.NewRows(subscriberCols).
			AddRow("sub-1", "a@example.com", "", "FREE", "{crypto}", true, true, false, nil, "", nil, now, now, now).
			AddRow("sub-2", "b@example.com", "", "PRO", "{crypto,ai}", true, false, false, nil, "", nil, now, now, now))

	subs, err := NewSubscriberRepo(db).FindSubscribers(context.Background(), segment.Query{
		Tiers:         []domain.Tier{domain.TierFree, domain.TierPro},
		Topic:         domain.Topic("crypto"),
		RequireDigest: true,
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub-2", subs[1].ID)
	assert.False(t, subs[1].MarketingEmails)
}

func TestFindSubscribersByTopicsAndIDs(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`WHERE unsubscribed = FALSE AND topics && \$1::text\[\] AND id = ANY\(\$2::text\[\]\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(subscriberCols))

	subs, err := NewSubscriberRepo(db).FindSubscribers(context.Background(), segment.Query{
		AnyTopics: []domain.Topic{"science"},
		IDs:       []string{"sub-1"},
	})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestNewsletterTransition(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNewsletterRepo(db)
	count := 3
	now := time.Now()

	mock.ExpectExec(`UPDATE newsletters`).
		WithArgs("nl-1", "SENDING", "SENT", now, 3, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), "nl-1", domain.NewsletterSending, domain.NewsletterSent,
		newsletter.TransitionFields{SentAt: &now, RecipientCount: &count})
	assert.NoError(t, err)
}

func TestNewsletterTransitionRejected(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{"wrong state", true, newsletter.ErrInvalidTransition},
		{"missing", false, newsletter.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(`UPDATE newsletters`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT EXISTS`).
				WithArgs("nl-1").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := NewNewsletterRepo(db).Transition(context.Background(), "nl-1",
				domain.NewsletterSending, domain.NewsletterSent, newsletter.TransitionFields{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEmailLogPlanIgnoresConflicts(t *testing.T) {
	db, mock := newMock(t)
	nl := &domain.Newsletter{ID: "nl-1", Subject: "Crypto Daily"}

	mock.ExpectExec(`INSERT INTO email_logs .+ ON CONFLICT \(newsletter_id, subscriber_id\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "nl-1", "newsletter", "Crypto Daily").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewEmailLogRepo(db).Plan(context.Background(), nl, domain.EmailTypeNewsletter, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEmailLogPlanChunks(t *testing.T) {
	db, mock := newMock(t)
	ids := make([]string, planChunk+1)
	for i := range ids {
		ids[i] = "sub"
	}
	mock.ExpectExec(`INSERT INTO email_logs`).WillReturnResult(sqlmock.NewResult(0, planChunk))
	mock.ExpectExec(`INSERT INTO email_logs`).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := NewEmailLogRepo(db).Plan(context.Background(), &domain.Newsletter{ID: "nl-1"}, domain.EmailTypeNewsletter, ids)
	require.NoError(t, err)
	assert.Equal(t, planChunk+1, n)
}

func TestEmailLogClaim(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEmailLogRepo(db)

	mock.ExpectExec(`SET status = 'SENDING', attempts = attempts \+ 1 .+ AND status = 'PENDING'`).
		WithArgs("nl-1", "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'SENDING'`).
		WithArgs("nl-1", "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Claim(context.Background(), "nl-1", "sub-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(context.Background(), "nl-1", "sub-1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")
}

func TestEmailLogTally(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM email_logs WHERE newsletter_id = \$1 GROUP BY status`).
		WithArgs("nl-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("SENT", 4).
			AddRow("DELIVERED", 1).
			AddRow("FAILED", 2).
			AddRow("PENDING", 3))

	tally, err := NewEmailLogRepo(db).Tally(context.Background(), "nl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LogTally{Pending: 3, Sent: 5, Failed: 2}, tally)
	assert.Equal(t, 3, tally.InFlight())
}

func TestEmailLogStaleSweep(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEmailLogRepo(db)
	cutoff := time.Now().Add(-15 * time.Minute)

	mock.ExpectExec(`SET status = 'FAILED',\s+error_message = 'delivery abandoned after '`).
		WithArgs(cutoff, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'PENDING'\s+WHERE status = 'SENDING' AND updated_at < \$1 AND attempts < \$2`).
		WithArgs(cutoff, 5).
		WillReturnResult(sqlmock.NewResult(0, 2))

	abandoned, err := repo.AbandonStale(context.Background(), cutoff, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, abandoned)

	reset, err := repo.ResetStale(context.Background(), cutoff, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, reset)
}

func TestEmailLogTakePendingStamps(t *testing.T) {
	db, mock := newMock(t)
	cutoff := time.Now().Add(-15 * time.Minute)
	now := time.Now()

	mock.ExpectQuery(`UPDATE email_logs SET updated_at = \$3\s+WHERE newsletter_id = \$1 AND status = 'PENDING' AND updated_at < \$2\s+RETURNING subscriber_id`).
		WithArgs("nl-1", cutoff, now).
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow("sub-2").AddRow("sub-1"))

	ids, err := NewEmailLogRepo(db).TakePending(context.Background(), "nl-1", cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1", "sub-2"}, ids)
}

func TestEmailLogMarkFailedError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`SET status = 'FAILED', error_message = \$3`).
		WithArgs("nl-1", "sub-1", "bounced").
		WillReturnError(errors.New("connection reset"))

	err := NewEmailLogRepo(db).MarkFailed(context.Background(), "nl-1", "sub-1", "bounced")
	assert.ErrorContains(t, err, "mark email failed")
}

func TestTransactionCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := NewTransactionRepo(db).Create(context.Background(), &domain.Transaction{
		ID: "tx-1", Provider: domain.ProviderStripe, ProviderRef: "pi_1",
	})
	assert.ErrorIs(t, err, billing.ErrAlreadyExists)
}

func TestTransactionGetByRefNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM transactions WHERE provider = \$1 AND provider_ref = \$2`).
		WithArgs("phonepe", "T123").
		WillReturnError(sql.ErrNoRows)

	_, err := NewTransactionRepo(db).GetByRef(context.Background(), domain.ProviderPhonePe, "T123")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestTransactionTransitionInvalid(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE transactions SET status = \$3`).
		WithArgs("tx-1", "PENDING", "SUCCEEDED").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewTransactionRepo(db).Transition(context.Background(), "tx-1", domain.TxPending, domain.TxSucceeded)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestGetToolsEmpty(t *testing.T) {
	db, _ := newMock(t)
	tools, err := NewToolRepo(db).GetTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tools)
}

func TestGetTools(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM tools\s+WHERE id = ANY\(\$1::text\[\]\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "url", "category", "pricing", "created_at"}).
			AddRow("t1", "Notion", "Docs", "https://notion.so", "productivity", "freemium", time.Now()))

	tools, err := NewToolRepo(db).GetTools(context.Background(), []string{"t1", "missing"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "Notion", tools[0].Name)
}
