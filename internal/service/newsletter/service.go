package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// Service implements the newsletter lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a newsletter service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single newsletter.
func (s *Service) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	return s.repo.Get(ctx, id)
}

// List returns newsletters matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Newsletter, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

// StartInput describes the newsletter a dispatch run is about to send.
type StartInput struct {
	Content     *domain.Content
	Topic       domain.Topic
	TargetTier  domain.Tier
	AIGenerated bool
}

func (s *Service) build(in StartInput, status domain.NewsletterStatus) (*domain.Newsletter, error) {
	if in.Content == nil || in.Content.Subject == "" {
		return nil, ErrMissingSubject
	}
	if !in.TargetTier.Valid() {
		return nil, fmt.Errorf("invalid target tier %q", in.TargetTier)
	}
	now := s.now().UTC()
	return &domain.Newsletter{
		ID:          uuid.New().String(),
		Subject:     in.Content.Subject,
		PreviewText: in.Content.PreviewText,
		ContentHTML: in.Content.ContentHTML,
		ContentJSON: in.Content.ContentJSON,
		Status:      status,
		Topic:       in.Topic,
		TargetTier:  in.TargetTier,
		AIGenerated: in.AIGenerated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CreateDraft stores content for a later send.
func (s *Service) CreateDraft(ctx context.Context, in StartInput) (*domain.Newsletter, error) {
	n, err := s.build(in, domain.NewsletterDraft)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	return n, nil
}

// Start creates a newsletter already in SENDING for an immediate run.
func (s *Service) Start(ctx context.Context, in StartInput) (*domain.Newsletter, error) {
	n, err := s.build(in, domain.NewsletterSending)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("start newsletter: %w", err)
	}
	logger.Info("newsletter: started", "newsletter_id", n.ID, "tier", n.TargetTier, "topic", n.Topic)
	return n, nil
}

// StartDraft moves a DRAFT newsletter to SENDING.
func (s *Service) StartDraft(ctx context.Context, id string) (*domain.Newsletter, error) {
	if err := s.transition(ctx, id, domain.NewsletterDraft, domain.NewsletterSending, TransitionFields{}); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// SetExpectedRecipients records the planned delivery count.
func (s *Service) SetExpectedRecipients(ctx context.Context, id string, n int) error {
	return s.repo.SetExpectedRecipients(ctx, id, n)
}

// MarkSent completes a SENDING newsletter with the number of attempted
// deliveries.
func (s *Service) MarkSent(ctx context.Context, id string, recipientCount int) error {
	now := s.now().UTC()
	err := s.transition(ctx, id, domain.NewsletterSending, domain.NewsletterSent, TransitionFields{
		SentAt:         &now,
		RecipientCount: &recipientCount,
	})
	if err != nil {
		return err
	}
	logger.Info("newsletter: sent", "newsletter_id", id, "recipients", recipientCount)
	return nil
}

// MarkFailed aborts a SENDING newsletter and records why.
func (s *Service) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.transition(ctx, id, domain.NewsletterSending, domain.NewsletterFailed, TransitionFields{ErrorMessage: &msg}); err != nil {
		return err
	}
	logger.Warn("newsletter: failed", "newsletter_id", id, "error", msg)
	return nil
}

// ListStale returns SENDING newsletters untouched for longer than age.
func (s *Service) ListStale(ctx context.Context, age time.Duration) ([]domain.Newsletter, error) {
	return s.repo.ListStale(ctx, s.now().Add(-age))
}

func (s *Service) transition(ctx context.Context, id string, from, to domain.NewsletterStatus, u TransitionFields) error {
	if !from.CanTransition(to) {
		return ErrInvalidTransition
	}
	err := s.repo.Transition(ctx, id, from, to, u)
	if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("newsletter %s -> %s: %w", from, to, err)
	}
	return err
}
