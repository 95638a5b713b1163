package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/mailer"
	"github.com/newsly/newsly/internal/queue"
	"github.com/newsly/newsly/internal/service/dispatch"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/segment"
	"github.com/newsly/newsly/internal/service/subscriber"
	"github.com/stretchr/testify/require"
)

// memLogs is an in-memory email log repository for unit testing.
type memLogs struct {
	mu      sync.Mutex
	rows    map[string]*domain.EmailLog
	touched map[string]time.Time
	planErr error
}

func newMemLogs() *memLogs {
	return &memLogs{rows: make(map[string]*domain.EmailLog), touched: make(map[string]time.Time)}
}

func logKey(newsletterID, subscriberID string) string { return newsletterID + ":" + subscriberID }

func (m *memLogs) Plan(_ context.Context, nl *domain.Newsletter, emailType domain.EmailType, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planErr != nil {
		return 0, m.planErr
	}
	n := 0
	now := time.Now()
	for _, id := range ids {
		k := logKey(nl.ID, id)
		if _, ok := m.rows[k]; ok {
			continue
		}
		m.rows[k] = &domain.EmailLog{
			ID:           fmt.Sprintf("log-%d", len(m.rows)+1),
			NewsletterID: nl.ID,
			SubscriberID: id,
			EmailType:    emailType,
			Subject:      nl.Subject,
			Status:       domain.EmailPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		n++
	}
	return n, nil
}

func (m *memLogs) Claim(_ context.Context, newsletterID, subscriberID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[logKey(newsletterID, subscriberID)]
	if !ok || l.Status != domain.EmailPending {
		return false, nil
	}
	l.Status = domain.EmailSending
	l.Attempts++
	l.UpdatedAt = time.Now()
	return true, nil
}

func (m *memLogs) MarkSent(_ context.Context, newsletterID, subscriberID, msgID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[logKey(newsletterID, subscriberID)]
	if !ok {
		return errors.New("no such log")
	}
	l.Status = domain.EmailSent
	l.ProviderMessageID = msgID
	l.SentAt = &at
	l.UpdatedAt = time.Now()
	return nil
}

func (m *memLogs) MarkFailed(_ context.Context, newsletterID, subscriberID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[logKey(newsletterID, subscriberID)]
	if !ok || !l.Status.IsInFlight() {
		return nil
	}
	l.Status = domain.EmailFailed
	l.ErrorMessage = reason
	l.UpdatedAt = time.Now()
	return nil
}

func (m *memLogs) Tally(_ context.Context, newsletterID string) (domain.LogTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t domain.LogTally
	for _, l := range m.rows {
		if l.NewsletterID != newsletterID {
			continue
		}
		switch l.Status {
		case domain.EmailPending:
			t.Pending++
		case domain.EmailSending:
			t.Sending++
		case domain.EmailSent, domain.EmailDelivered:
			t.Sent++
		case domain.EmailFailed:
			t.Failed++
		}
	}
	return t, nil
}

func (m *memLogs) ListByNewsletter(_ context.Context, newsletterID string) ([]domain.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailLog
	for _, l := range m.rows {
		if l.NewsletterID == newsletterID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriberID < out[j].SubscriberID })
	return out, nil
}

func (m *memLogs) TouchRecipients(_ context.Context, newsletterID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.rows {
		if l.NewsletterID == newsletterID && l.Status == domain.EmailSent {
			m.touched[l.SubscriberID] = at
			n++
		}
	}
	return n, nil
}

func (m *memLogs) ResetStale(_ context.Context, cutoff time.Time, maxAttempts int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.rows {
		if l.Status == domain.EmailSending && l.UpdatedAt.Before(cutoff) && l.Attempts < maxAttempts {
			l.Status = domain.EmailPending
			n++
		}
	}
	return n, nil
}

func (m *memLogs) AbandonStale(_ context.Context, cutoff time.Time, maxAttempts int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.rows {
		if l.Status == domain.EmailSending && l.UpdatedAt.Before(cutoff) && l.Attempts >= maxAttempts {
			l.Status = domain.EmailFailed
			l.ErrorMessage = "delivery abandoned"
			l.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *memLogs) TakePending(_ context.Context, newsletterID string, cutoff, at time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.rows {
		if l.NewsletterID == newsletterID && l.Status == domain.EmailPending && l.UpdatedAt.Before(cutoff) {
			l.UpdatedAt = at
			out = append(out, l.SubscriberID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// set overwrites one log for test setup.
func (m *memLogs) set(newsletterID, subscriberID string, fn func(l *domain.EmailLog)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.rows[logKey(newsletterID, subscriberID)])
}

func (m *memLogs) get(newsletterID, subscriberID string) domain.EmailLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[logKey(newsletterID, subscriberID)]
}

func (m *memLogs) countFor(subscriberID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.rows {
		if l.SubscriberID == subscriberID {
			n++
		}
	}
	return n
}

// memNewsletters is an in-memory newsletter.Repository.
type memNewsletters struct {
	mu   sync.Mutex
	rows map[string]*domain.Newsletter
}

func newMemNewsletters() *memNewsletters {
	return &memNewsletters{rows: make(map[string]*domain.Newsletter)}
}

func (m *memNewsletters) Get(_ context.Context, id string) (*domain.Newsletter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, newsletter.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memNewsletters) List(_ context.Context, _ newsletter.ListFilter) ([]domain.Newsletter, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Newsletter
	for _, n := range m.rows {
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (m *memNewsletters) Create(_ context.Context, n *domain.Newsletter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memNewsletters) Transition(_ context.Context, id string, from, to domain.NewsletterStatus, u newsletter.TransitionFields) error {
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
	n.UpdatedAt = time.Now()
	return nil
}

func (m *memNewsletters) SetExpectedRecipients(_ context.Context, id string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return newsletter.ErrNotFound
	}
	n.ExpectedRecipients = count
	return nil
}

func (m *memNewsletters) ListStale(_ context.Context, cutoff time.Time) ([]domain.Newsletter, error) {
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

func (m *memNewsletters) age(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].UpdatedAt = time.Now().Add(-d)
}

func (m *memNewsletters) byTier(tier domain.Tier) []domain.Newsletter {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Newsletter
	for _, n := range m.rows {
		if n.TargetTier == tier {
			out = append(out, *n)
		}
	}
	return out
}

// memSubscribers serves segment.Source and dispatch.SubscriberLookup.
type memSubscribers struct {
	subs []domain.Subscriber
}

func (m *memSubscribers) FindSubscribers(_ context.Context, q segment.Query) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for i := range m.subs {
		if q.Matches(&m.subs[i]) {
			out = append(out, m.subs[i])
		}
	}
	return out, nil
}

func (m *memSubscribers) Get(_ context.Context, id string) (*domain.Subscriber, error) {
	for i := range m.subs {
		if m.subs[i].ID == id {
			cp := m.subs[i]
			return &cp, nil
		}
	}
	return nil, subscriber.ErrNotFound
}

// fakeSender records messages and fails for addresses in failFor.
type fakeSender struct {
	mu       sync.Mutex
	sent     []*domain.EmailMessage
	failFor  map[string]bool
	inFlight int32
	peak     int32
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return nil, errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return &domain.SendResult{MessageID: "msg-" + msg.SubscriberID, Provider: "fake", SentAt: time.Now()}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeGenerator returns canned content and fails for tiers in fail.
type fakeGenerator struct {
	fail map[domain.Tier]bool
}

func (g *fakeGenerator) Generate(_ context.Context, topic domain.Topic, tier domain.Tier) (*domain.Content, error) {
	if g.fail[tier] {
		return nil, errors.New("model unavailable")
	}
	return &domain.Content{
		Subject:     fmt.Sprintf("%s digest for %s", topic.Label(), tier.Label()),
		PreviewText: "Today in " + topic.Label(),
		ContentHTML: "<p>" + strings.ToLower(string(tier)) + " body</p>",
	}, nil
}

// fakePublisher collects jobs.
type fakePublisher struct {
	mu   sync.Mutex
	jobs []queue.DeliveryJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job queue.DeliveryJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

// harness wires the dispatch components over in-memory stores.
type harness struct {
	logs        *memLogs
	nlRepo      *memNewsletters
	newsletters *newsletter.Service
	subs        *memSubscribers
	sender      *fakeSender
	render      *mailer.Renderer
	deliverer   *dispatch.Deliverer
	finalizer   *dispatch.Finalizer
}

func newHarness(t *testing.T, subs ...domain.Subscriber) *harness {
	t.Helper()
	render, err := mailer.NewRenderer("Newsly", "https://newsly.test")
	require.NoError(t, err)

	h := &harness{
		logs:   newMemLogs(),
		nlRepo: newMemNewsletters(),
		subs:   &memSubscribers{subs: subs},
		sender: &fakeSender{failFor: map[string]bool{}},
		render: render,
	}
	h.newsletters = newsletter.NewService(h.nlRepo)
	h.deliverer = dispatch.NewDeliverer(h.logs, h.sender, render, dispatch.Identity{FromName: "Newsly", FromEmail: "hello@newsly.test"}, 0)
	h.finalizer = dispatch.NewFinalizer(h.logs, h.newsletters)
	return h
}

func (h *harness) start(t *testing.T, tier domain.Tier) *domain.Newsletter {
	t.Helper()
	nl, err := h.newsletters.Start(context.Background(), newsletter.StartInput{
		Content:     &domain.Content{Subject: "Crypto digest", ContentHTML: "<p>body</p>"},
		Topic:       domain.TopicCrypto,
		TargetTier:  tier,
		AIGenerated: true,
	})
	require.NoError(t, err)
	return nl
}

func sub(id string, tier domain.Tier, topics ...domain.Topic) domain.Subscriber {
	return domain.Subscriber{
		ID:          id,
		Email:       id + "@example.com",
		Name:        strings.ToUpper(id[:1]) + id[1:],
		Tier:        tier,
		Topics:      topics,
		DailyDigest: true,
	}
}
