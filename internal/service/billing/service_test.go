package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/billing"
	"github.com/newsly/newsly/internal/service/subscriber"
)

// memRepo is an in-memory transaction repository for unit testing.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Transaction
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*domain.Transaction)}
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.rows[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memRepo) GetByRef(_ context.Context, p domain.PaymentProvider, ref string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.rows {
		if tx.Provider == p && tx.ProviderRef == ref {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, billing.ErrNotFound
}

func (m *memRepo) Create(_ context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.Provider == tx.Provider && existing.ProviderRef == tx.ProviderRef {
			return billing.ErrAlreadyExists
		}
	}
	cp := *tx
	m.rows[tx.ID] = &cp
	return nil
}

func (m *memRepo) Transition(_ context.Context, id string, from, to domain.TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.rows[id]
	if !ok {
		return billing.ErrNotFound
	}
	if tx.Status != from {
		return billing.ErrInvalidTransition
	}
	tx.Status = to
	return nil
}

func (m *memRepo) ListBySubscriber(_ context.Context, subscriberID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.rows {
		if tx.SubscriberID == subscriberID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

// memSubs records tier changes.
type memSubs struct {
	tiers   map[string]domain.Tier
	changes int
}

func (m *memSubs) Get(_ context.Context, id string) (*domain.Subscriber, error) {
	tier, ok := m.tiers[id]
	if !ok {
		return nil, subscriber.ErrNotFound
	}
	return &domain.Subscriber{ID: id, Tier: tier}, nil
}

func (m *memSubs) ChangeTier(_ context.Context, id string, tier domain.Tier) (*domain.Subscriber, error) {
	if _, ok := m.tiers[id]; !ok {
		return nil, subscriber.ErrNotFound
	}
	m.tiers[id] = tier
	m.changes++
	return &domain.Subscriber{ID: id, Tier: tier}, nil
}

func setup() (*billing.Service, *memRepo, *memSubs) {
	repo := newMemRepo()
	subs := &memSubs{tiers: map[string]domain.Tier{"sub-1": domain.TierFree}}
	return billing.NewService(repo, subs), repo, subs
}

func proCheckout(ref string) billing.RecordInput {
	return billing.RecordInput{
		SubscriberID: "sub-1",
		Provider:     domain.ProviderStripe,
		ProviderRef:  ref,
		Tier:         domain.TierPro,
		AmountMinor:  900,
		Currency:     "usd",
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	tx, created, err := svc.Record(ctx, proCheckout("cs_1"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !created || tx.Status != domain.TxPending || tx.Currency != "USD" {
		t.Fatalf("unexpected transaction: created=%v %+v", created, tx)
	}

	again, created, err := svc.Record(ctx, proCheckout("cs_1"))
	if err != nil {
		t.Fatalf("Record again: %v", err)
	}
	if created || again.ID != tx.ID {
		t.Errorf("expected existing transaction %s, got %s (created=%v)", tx.ID, again.ID, created)
	}
}

func TestRecordValidation(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	cases := map[string]func(in *billing.RecordInput){
		"provider": func(in *billing.RecordInput) { in.Provider = "paypal" },
		"ref":      func(in *billing.RecordInput) { in.ProviderRef = " " },
		"free":     func(in *billing.RecordInput) { in.Tier = domain.TierFree },
		"amount":   func(in *billing.RecordInput) { in.AmountMinor = 0 },
		"currency": func(in *billing.RecordInput) { in.Currency = "dollars" },
	}
	for name, mutate := range cases {
		in := proCheckout("cs_" + name)
		mutate(&in)
		if _, _, err := svc.Record(ctx, in); !errors.Is(err, billing.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}

	in := proCheckout("cs_ghost")
	in.SubscriberID = "ghost"
	if _, _, err := svc.Record(ctx, in); !errors.Is(err, subscriber.ErrNotFound) {
		t.Errorf("expected subscriber.ErrNotFound, got %v", err)
	}
}

func TestConfirmUpgradesSubscriber(t *testing.T) {
	svc, _, subs := setup()
	ctx := context.Background()
	if _, _, err := svc.Record(ctx, proCheckout("cs_1")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	tx, err := svc.Confirm(ctx, domain.ProviderStripe, "cs_1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if tx.Status != domain.TxSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", tx.Status)
	}
	if subs.tiers["sub-1"] != domain.TierPro {
		t.Errorf("tier = %s, want PRO", subs.tiers["sub-1"])
	}

	if _, err := svc.Confirm(ctx, domain.ProviderStripe, "cs_1"); err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if subs.changes != 1 {
		t.Errorf("tier changed %d times, want 1", subs.changes)
	}
}

func TestFailAndRefund(t *testing.T) {
	svc, _, subs := setup()
	ctx := context.Background()

	if _, _, err := svc.Record(ctx, proCheckout("cs_fail")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	tx, err := svc.Fail(ctx, domain.ProviderStripe, "cs_fail")
	if err != nil || tx.Status != domain.TxFailed {
		t.Fatalf("Fail: %v %+v", err, tx)
	}
	if _, err := svc.Confirm(ctx, domain.ProviderStripe, "cs_fail"); !errors.Is(err, billing.ErrInvalidTransition) {
		t.Errorf("confirm after fail: expected ErrInvalidTransition, got %v", err)
	}

	if _, _, err := svc.Record(ctx, proCheckout("cs_ok")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := svc.Refund(ctx, domain.ProviderStripe, "cs_ok"); !errors.Is(err, billing.ErrInvalidTransition) {
		t.Errorf("refund of pending: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.Confirm(ctx, domain.ProviderStripe, "cs_ok"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	tx, err = svc.Refund(ctx, domain.ProviderStripe, "cs_ok")
	if err != nil || tx.Status != domain.TxRefunded {
		t.Fatalf("Refund: %v %+v", err, tx)
	}
	if subs.tiers["sub-1"] != domain.TierFree {
		t.Errorf("tier = %s, want FREE", subs.tiers["sub-1"])
	}

	list, err := svc.List(ctx, "sub-1")
	if err != nil || len(list) != 2 {
		t.Errorf("List = %d, %v; want 2 transactions", len(list), err)
	}
}

func TestUnknownReference(t *testing.T) {
	svc, _, _ := setup()
	if _, err := svc.Confirm(context.Background(), domain.ProviderPhonePe, "nope"); !errors.Is(err, billing.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
