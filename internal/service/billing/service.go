package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// Service implements the payment ledger.
type Service struct {
	repo Repository
	subs Subscribers
	now  func() time.Time
}

// NewService creates a billing service.
func NewService(repo Repository, subs Subscribers) *Service {
	return &Service{repo: repo, subs: subs, now: time.Now}
}

// RecordInput describes a checkout.
type RecordInput struct {
	SubscriberID string                 `json:"subscriberId" validate:"required"`
	Provider     domain.PaymentProvider `json:"provider" validate:"required,oneof=stripe phonepe"`
	ProviderRef  string                 `json:"providerRef" validate:"required"`
	Tier         domain.Tier            `json:"tier" validate:"required,oneof=PRO PREMIUM"`
	AmountMinor  int64                  `json:"amountMinor" validate:"gt=0"`
	Currency     string                 `json:"currency" validate:"required,len=3"`
}

func (in RecordInput) validate() error {
	switch {
	case !in.Provider.Valid():
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, in.Provider)
	case strings.TrimSpace(in.ProviderRef) == "":
		return fmt.Errorf("%w: provider reference is required", ErrInvalidInput)
	case !in.Tier.Valid() || in.Tier == domain.TierFree:
		return fmt.Errorf("%w: tier %q cannot be purchased", ErrInvalidInput, in.Tier)
	case in.AmountMinor <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case len(in.Currency) != 3:
		return fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidInput)
	}
	return nil
}

// Record stores a PENDING transaction. Recording the same gateway
// reference again returns the existing transaction and false.
func (s *Service) Record(ctx context.Context, in RecordInput) (*domain.Transaction, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}
	if existing, err := s.repo.GetByRef(ctx, in.Provider, in.ProviderRef); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if _, err := s.subs.Get(ctx, in.SubscriberID); err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	tx := &domain.Transaction{
		ID:           uuid.New().String(),
		SubscriberID: in.SubscriberID,
		Provider:     in.Provider,
		ProviderRef:  in.ProviderRef,
		Tier:         in.Tier,
		AmountMinor:  in.AmountMinor,
		Currency:     strings.ToUpper(in.Currency),
		Status:       domain.TxPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			existing, gerr := s.repo.GetByRef(ctx, in.Provider, in.ProviderRef)
			return existing, false, gerr
		}
		return nil, false, fmt.Errorf("record transaction: %w", err)
	}
	logger.Info("billing: recorded", "transaction_id", tx.ID, "subscriber_id", tx.SubscriberID, "tier", tx.Tier)
	return tx, true, nil
}

// Confirm marks the payment SUCCEEDED and upgrades the subscriber.
// Confirming twice is harmless.
func (s *Service) Confirm(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error) {
	tx, err := s.repo.GetByRef(ctx, provider, ref)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxSucceeded {
		if err := s.transition(ctx, tx, domain.TxSucceeded); err != nil {
			return nil, err
		}
	}

	sub, err := s.subs.Get(ctx, tx.SubscriberID)
	if err != nil {
		return tx, fmt.Errorf("load subscriber: %w", err)
	}
	if sub.Tier.Rank() < tx.Tier.Rank() {
		if _, err := s.subs.ChangeTier(ctx, sub.ID, tx.Tier); err != nil {
			return tx, fmt.Errorf("upgrade subscriber: %w", err)
		}
		logger.Info("billing: upgraded", "subscriber_id", sub.ID, "from", sub.Tier, "to", tx.Tier)
	}
	return tx, nil
}

// Fail marks a pending payment FAILED.
func (s *Service) Fail(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error) {
	tx, err := s.repo.GetByRef(ctx, provider, ref)
	if err != nil {
		return nil, err
	}
	if tx.Status == domain.TxFailed {
		return tx, nil
	}
	if err := s.transition(ctx, tx, domain.TxFailed); err != nil {
		return nil, err
	}
	return tx, nil
}

// Refund marks a succeeded payment REFUNDED and moves the subscriber back
// to FREE.
func (s *Service) Refund(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error) {
	tx, err := s.repo.GetByRef(ctx, provider, ref)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxRefunded {
		if err := s.transition(ctx, tx, domain.TxRefunded); err != nil {
			return nil, err
		}
	}
	if _, err := s.subs.ChangeTier(ctx, tx.SubscriberID, domain.TierFree); err != nil {
		return tx, fmt.Errorf("downgrade subscriber: %w", err)
	}
	logger.Info("billing: refunded", "transaction_id", tx.ID, "subscriber_id", tx.SubscriberID)
	return tx, nil
}

// List returns a subscriber's transactions.
func (s *Service) List(ctx context.Context, subscriberID string) ([]domain.Transaction, error) {
	return s.repo.ListBySubscriber(ctx, subscriberID)
}

func (s *Service) transition(ctx context.Context, tx *domain.Transaction, to domain.TransactionStatus) error {
	if !tx.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tx.Status, to)
	}
	if err := s.repo.Transition(ctx, tx.ID, tx.Status, to); err != nil {
		return err
	}
	tx.Status = to
	tx.UpdatedAt = s.now().UTC()
	return nil
}
