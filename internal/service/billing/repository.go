package billing

import (
	"context"

	"github.com/newsly/newsly/internal/domain"
)

// Repository defines the data access contract for transactions.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a transaction by id. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Transaction, error)

	// GetByRef returns the transaction a gateway reference belongs to.
	GetByRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error)

	// Create inserts a transaction. Returns ErrAlreadyExists if the
	// (provider, providerRef) pair is taken.
	Create(ctx context.Context, tx *domain.Transaction) error

	// Transition moves the transaction between statuses. Returns
	// ErrInvalidTransition if it is not currently in from.
	Transition(ctx context.Context, id string, from, to domain.TransactionStatus) error

	// ListBySubscriber returns a subscriber's transactions, newest first.
	ListBySubscriber(ctx context.Context, subscriberID string) ([]domain.Transaction, error)
}

// Subscribers is the part of the subscriber service billing drives.
// *subscriber.Service implements it.
type Subscribers interface {
	Get(ctx context.Context, id string) (*domain.Subscriber, error)
	ChangeTier(ctx context.Context, id string, tier domain.Tier) (*domain.Subscriber, error)
}
