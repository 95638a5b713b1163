package subscriber

import (
	"context"

	"github.com/newsly/newsly/internal/domain"
)

// Repository defines the data access contract for subscribers.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single subscriber. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Subscriber, error)

	// GetByEmail looks a subscriber up by normalized email.
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	// List returns subscribers matching the filter, newest first, and the
	// total count before pagination.
	List(ctx context.Context, f ListFilter) ([]domain.Subscriber, int, error)

	// Create inserts a new subscriber. Returns ErrAlreadyExists on a
	// duplicate email.
	Create(ctx context.Context, s *domain.Subscriber) error

	// Update persists every mutable field of s.
	Update(ctx context.Context, s *domain.Subscriber) error

	// Delete removes a subscriber and its email logs.
	Delete(ctx context.Context, id string) error
}

// ListFilter controls pagination and filtering for subscriber lists.
type ListFilter struct {
	Tier         domain.Tier
	Topic        domain.Topic
	Unsubscribed *bool
	Search       string
	Limit        int
	Offset       int
}
