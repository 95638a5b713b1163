package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// Service implements subscriber business logic. All public methods are
// safe for concurrent use if the underlying repository is.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a subscriber service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single subscriber.
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns the subscriber with the given address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
}

// List returns subscribers matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Subscriber, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.repo.List(ctx, f)
}

// Delete hard-deletes a subscriber.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// SubscribeInput holds the fields of a public sign-up.
type SubscribeInput struct {
	Email  string   `json:"email" validate:"required,email"`
	Name   string   `json:"name" validate:"max=100"`
	Topics []string `json:"topics"`
}

// Subscribe creates a FREE subscriber, or re-activates an unsubscribed one.
// Topics default to every FREE topic. Returns ErrAlreadyExists if the
// address is already active.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*domain.Subscriber, bool, error) {
	email := domain.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, false, ErrInvalidEmail
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	tier := domain.TierFree
	if existing != nil {
		tier = existing.Tier
	}
	topics, err := resolveTopics(tier, in.Topics)
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	if existing != nil {
		if !existing.Unsubscribed {
			return existing, false, ErrAlreadyExists
		}
		existing.Unsubscribed = false
		existing.UnsubscribedAt = nil
		existing.DailyDigest = true
		existing.SubscribedAt = now
		if in.Name != "" {
			existing.Name = in.Name
		}
		if len(in.Topics) > 0 {
			existing.Topics = topics
		}
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("reactivate subscriber: %w", err)
		}
		logger.Info("subscriber: reactivated", "email", email)
		return existing, false, nil
	}

	sub := &domain.Subscriber{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            in.Name,
		Tier:            domain.TierFree,
		Topics:          topics,
		DailyDigest:     true,
		MarketingEmails: true,
		SubscribedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, false, err
	}
	logger.Info("subscriber: created", "email", email, "topics", len(topics))
	return sub, true, nil
}

// Preferences holds the mutable preference fields. Nil fields are left
// unchanged.
type Preferences struct {
	Name            *string  `json:"name"`
	Topics          []string `json:"topics"`
	DailyDigest     *bool    `json:"dailyDigest"`
	MarketingEmails *bool    `json:"marketingEmails"`
}

// UpdatePreferences applies p to the subscriber with the given email.
// Returns ErrTopicNotAllowed if a topic is above the subscriber's tier.
func (s *Service) UpdatePreferences(ctx context.Context, email string, p Preferences) (*domain.Subscriber, error) {
	sub, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if p.Topics != nil && len(p.Topics) == 0 {
		sub.Topics = []domain.Topic{}
	} else if p.Topics != nil {
		topics, err := resolveTopics(sub.Tier, p.Topics)
		if err != nil {
			return nil, err
		}
		sub.Topics = topics
	}
	if p.Name != nil {
		sub.Name = *p.Name
	}
	if p.DailyDigest != nil {
		sub.DailyDigest = *p.DailyDigest
	}
	if p.MarketingEmails != nil {
		sub.MarketingEmails = *p.MarketingEmails
	}
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return sub, nil
}

// Unsubscribe flags the subscriber as unsubscribed. Calling it twice keeps
// the original timestamp.
func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	sub, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if sub.Unsubscribed {
		return nil
	}
	now := s.now().UTC()
	sub.Unsubscribed = true
	sub.UnsubscribedAt = &now
	if err := s.repo.Update(ctx, sub); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	logger.Info("subscriber: unsubscribed", "email", sub.Email)
	return nil
}

// ChangeTier moves a subscriber to tier. An upgrade enables every topic
// the new tier unlocks; a downgrade leaves topics as they are.
func (s *Service) ChangeTier(ctx context.Context, id string, tier domain.Tier) (*domain.Subscriber, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Tier == tier {
		return sub, nil
	}

	upgrade := tier.Rank() > sub.Tier.Rank()
	if upgrade {
		for _, t := range domain.AllowedTopics(tier) {
			if !t.AllowedFor(sub.Tier) && !sub.HasTopic(t) {
				sub.Topics = append(sub.Topics, t)
			}
		}
	}
	prev := sub.Tier
	sub.Tier = tier
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("change tier: %w", err)
	}
	logger.Info("subscriber: tier changed", "subscriber_id", id, "from", prev, "to", tier)
	return sub, nil
}

// resolveTopics parses names and checks them against tier. Empty input
// yields every topic of FREE, the default sign-up set.
func resolveTopics(tier domain.Tier, names []string) ([]domain.Topic, error) {
	if len(names) == 0 {
		return domain.AllowedTopics(domain.TierFree), nil
	}
	topics, err := domain.ParseTopics(names)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopicNotAllowed, err)
	}
	if bad := domain.DisallowedTopics(tier, topics); len(bad) > 0 {
		return nil, fmt.Errorf("%w: %v requires a higher tier than %s", ErrTopicNotAllowed, bad, tier)
	}
	return topics, nil
}
