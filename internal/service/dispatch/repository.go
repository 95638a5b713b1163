package dispatch

import (
	"context"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/newsletter"
)

// LogRepository defines the data access contract for email logs.
// Implementations must be safe for concurrent use.
type LogRepository interface {
	// Plan inserts a PENDING log for every subscriber that does not already
	// have one for nl. Returns the number of rows inserted.
	Plan(ctx context.Context, nl *domain.Newsletter, emailType domain.EmailType, subscriberIDs []string) (int, error)

	// Claim moves the log from PENDING to SENDING and increments attempts.
	// Returns false if the log is not PENDING.
	Claim(ctx context.Context, newsletterID, subscriberID string) (bool, error)

	// MarkSent records a provider acceptance.
	MarkSent(ctx context.Context, newsletterID, subscriberID, providerMessageID string, sentAt time.Time) error

	// MarkFailed records a failed delivery. Only in-flight logs are updated.
	MarkFailed(ctx context.Context, newsletterID, subscriberID, reason string) error

	// Tally counts the newsletter's logs by status.
	Tally(ctx context.Context, newsletterID string) (domain.LogTally, error)

	// ListByNewsletter returns every log of a newsletter.
	ListByNewsletter(ctx context.Context, newsletterID string) ([]domain.EmailLog, error)

	// TouchRecipients sets lastEmailSent for every subscriber whose log for
	// the newsletter is SENT.
	TouchRecipients(ctx context.Context, newsletterID string, at time.Time) (int, error)

	// ResetStale moves SENDING logs last updated before cutoff back to
	// PENDING while they have fewer than maxAttempts attempts.
	ResetStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int, error)

	// AbandonStale fails SENDING logs last updated before cutoff that have
	// used up maxAttempts.
	AbandonStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int, error)

	// TakePending returns subscriber IDs whose log for the newsletter is
	// PENDING and was last updated before cutoff, stamping those logs with
	// at so later sweeps skip them until they are stale again.
	TakePending(ctx context.Context, newsletterID string, cutoff, at time.Time) ([]string, error)
}

// Newsletters is the part of the newsletter service dispatch drives.
// *newsletter.Service implements it.
type Newsletters interface {
	Get(ctx context.Context, id string) (*domain.Newsletter, error)
	Start(ctx context.Context, in newsletter.StartInput) (*domain.Newsletter, error)
	SetExpectedRecipients(ctx context.Context, id string, n int) error
	MarkSent(ctx context.Context, id string, recipientCount int) error
	MarkFailed(ctx context.Context, id string, cause error) error
	ListStale(ctx context.Context, age time.Duration) ([]domain.Newsletter, error)
}

// SubscriberLookup loads a single subscriber. *subscriber.Service
// implements it.
type SubscriberLookup interface {
	Get(ctx context.Context, id string) (*domain.Subscriber, error)
}
