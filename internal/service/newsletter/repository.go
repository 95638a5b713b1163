package newsletter

import (
	"context"
	"time"

	"github.com/newsly/newsly/internal/domain"
)

// Repository defines the data access contract for newsletters.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single newsletter. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Newsletter, error)

	// List returns newsletters matching the filter, newest first, and the
	// total count before pagination.
	List(ctx context.Context, f ListFilter) ([]domain.Newsletter, int, error)

	// Create inserts a new newsletter.
	Create(ctx context.Context, n *domain.Newsletter) error

	// Transition moves the newsletter from one status to another, applying
	// u in the same statement. Returns ErrInvalidTransition if the row is
	// not currently in from, and ErrNotFound if it doesn't exist.
	Transition(ctx context.Context, id string, from, to domain.NewsletterStatus, u TransitionFields) error

	// SetExpectedRecipients records how many deliveries a run planned.
	SetExpectedRecipients(ctx context.Context, id string, n int) error

	// ListStale returns SENDING newsletters last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Newsletter, error)
}

// ListFilter controls pagination and filtering for newsletter lists.
type ListFilter struct {
	Status     domain.NewsletterStatus
	TargetTier domain.Tier
	Topic      domain.Topic
	Limit      int
	Offset     int
}

// TransitionFields holds optional columns written with a status change.
type TransitionFields struct {
	SentAt         *time.Time
	RecipientCount *int
	ErrorMessage   *string
}
