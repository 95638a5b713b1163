package newsletter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/newsletter"
)

// memRepo is an in-memory newsletter repository for unit testing.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Newsletter
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*domain.Newsletter)}
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Newsletter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, newsletter.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f newsletter.ListFilter) ([]domain.Newsletter, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Newsletter
	for _, n := range m.rows {
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (m *memRepo) Create(_ context.Context, n *domain.Newsletter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memRepo) Transition(_ context.Context, id string, from, to domain.NewsletterStatus, u newsletter.TransitionFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return newsletter.ErrNotFound
	}
	if n.Status != from {
		return newsletter.ErrInvalidTransition
	}
	n.Status = to
	if u.SentAt != nil {
		n.SentAt = u.SentAt
	}
	if u.RecipientCount != nil {
		n.RecipientCount = *u.RecipientCount
	}
	if u.ErrorMessage != nil {
		n.ErrorMessage = *u.ErrorMessage
	}
	return nil
}

func (m *memRepo) SetExpectedRecipients(_ context.Context, id string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return newsletter.ErrNotFound
	}
	n.ExpectedRecipients = count
	return nil
}

func (m *memRepo) ListStale(_ context.Context, cutoff time.Time) ([]domain.Newsletter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Newsletter
	for _, n := range m.rows {
		if n.Status == domain.NewsletterSending && n.UpdatedAt.Before(cutoff) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func content() *domain.Content {
	return &domain.Content{Subject: "Crypto today", PreviewText: "prices", ContentHTML: "<p>hi</p>"}
}

func TestStartCreatesSending(t *testing.T) {
	svc := newsletter.NewService(newMemRepo())
	n, err := svc.Start(context.Background(), newsletter.StartInput{
		Content: content(), Topic: domain.TopicCrypto, TargetTier: domain.TierPro, AIGenerated: true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if n.Status != domain.NewsletterSending || !n.AIGenerated || n.TargetTier != domain.TierPro {
		t.Fatalf("unexpected newsletter: %+v", n)
	}
}

func TestStartRequiresSubject(t *testing.T) {
	svc := newsletter.NewService(newMemRepo())
	_, err := svc.Start(context.Background(), newsletter.StartInput{Content: &domain.Content{}, TargetTier: domain.TierFree})
	if err != newsletter.ErrMissingSubject {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestMarkSent(t *testing.T) {
	svc := newsletter.NewService(newMemRepo())
	ctx := context.Background()
	n, _ := svc.Start(ctx, newsletter.StartInput{Content: content(), TargetTier: domain.TierFree})

	if err := svc.MarkSent(ctx, n.ID, 2); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	got, _ := svc.Get(ctx, n.ID)
	if got.Status != domain.NewsletterSent || got.RecipientCount != 2 || got.SentAt == nil {
		t.Fatalf("unexpected newsletter: %+v", got)
	}

	// A second finalizer loses the race.
	if err := svc.MarkSent(ctx, n.ID, 2); !errors.Is(err, newsletter.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDraftCannotJumpToSent(t *testing.T) {
	svc := newsletter.NewService(newMemRepo())
	ctx := context.Background()
	d, _ := svc.CreateDraft(ctx, newsletter.StartInput{Content: content(), TargetTier: domain.TierFree})

	if err := svc.MarkSent(ctx, d.ID, 0); !errors.Is(err, newsletter.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	started, err := svc.StartDraft(ctx, d.ID)
	if err != nil {
		t.Fatalf("start draft: %v", err)
	}
	if started.Status != domain.NewsletterSending {
		t.Fatalf("expected SENDING, got %s", started.Status)
	}
	if err := svc.MarkSent(ctx, d.ID, 0); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	svc := newsletter.NewService(newMemRepo())
	ctx := context.Background()
	n, _ := svc.Start(ctx, newsletter.StartInput{Content: content(), TargetTier: domain.TierFree})

	if err := svc.MarkFailed(ctx, n.ID, errors.New("provider down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := svc.Get(ctx, n.ID)
	if got.Status != domain.NewsletterFailed || got.ErrorMessage != "provider down" {
		t.Fatalf("unexpected newsletter: %+v", got)
	}
	if err := svc.MarkSent(ctx, n.ID, 1); !errors.Is(err, newsletter.ErrInvalidTransition) {
		t.Fatalf("FAILED must be terminal, got %v", err)
	}
}

func TestTransitionNotFound(t *testing.T) {
	svc := newsletter.NewService(newMemRepo())
	if err := svc.MarkSent(context.Background(), "missing", 0); !errors.Is(err, newsletter.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
