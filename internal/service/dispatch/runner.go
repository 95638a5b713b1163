package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/metrics"
	"github.com/newsly/newsly/internal/pkg/distlock"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/service/content"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/segment"
)

// Audience resolves recipients. *segment.Selector implements it.
type Audience interface {
	Eligible(ctx context.Context, topic domain.Topic, target domain.Tier) ([]domain.Subscriber, error)
	Targeted(ctx context.Context, t segment.Target) ([]domain.Subscriber, bool, error)
}

// Composer builds admin content. *content.Composer implements it.
type Composer interface {
	Compose(ctx context.Context, in content.AdminInput) (*domain.Content, error)
}

// RunnerDeps are the collaborators of a Runner. Locks may be nil to run
// without a distributed lock.
type RunnerDeps struct {
	Generator   content.Generator
	Composer    Composer
	Audience    Audience
	Newsletters Newsletters
	Strategy    Strategy
	Locks       distlock.Factory
	LockTTL     time.Duration
}

// Runner drives complete dispatch runs.
type Runner struct {
	generator   content.Generator
	composer    Composer
	audience    Audience
	newsletters Newsletters
	strategy    Strategy
	locks       distlock.Factory
	lockTTL     time.Duration
	now         func() time.Time
}

// NewRunner wires a Runner.
func NewRunner(d RunnerDeps) *Runner {
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Minute
	}
	return &Runner{
		generator:   d.Generator,
		composer:    d.Composer,
		audience:    d.Audience,
		newsletters: d.Newsletters,
		strategy:    d.Strategy,
		locks:       d.Locks,
		lockTTL:     d.LockTTL,
		now:         time.Now,
	}
}

// TierResult is the outcome of one tier of an automatic run.
type TierResult struct {
	Generated    bool   `json:"generated"`
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	Queued       int    `json:"queued,omitempty"`
	Error        string `json:"error,omitempty"`
	NewsletterID string `json:"newsletterId,omitempty"`
}

// AutoResult is the outcome of an automatic run, keyed by lower-case tier
// name.
type AutoResult struct {
	Topic     domain.Topic          `json:"topic"`
	Results   map[string]TierResult `json:"results"`
	Timestamp time.Time             `json:"timestamp"`
}

// RunAuto generates and sends the topic's newsletter to FREE, PRO and
// PREMIUM in turn. A failing tier does not stop the others. Returns
// ErrRunInProgress if another run for the topic holds the lock.
func (r *Runner) RunAuto(ctx context.Context, topic domain.Topic) (*AutoResult, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if r.locks == nil {
		return r.runAuto(ctx, topic), nil
	}

	var res *AutoResult
	err := distlock.Run(ctx, r.locks("newsletter:run:"+string(topic), r.lockTTL), func(ctx context.Context) error {
		res = r.runAuto(ctx, topic)
		return nil
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return res, nil
}

func (r *Runner) runAuto(ctx context.Context, topic domain.Topic) *AutoResult {
	res := &AutoResult{Topic: topic, Results: make(map[string]TierResult, len(domain.Tiers))}
	logger.Info("runner: auto run starting", "topic", topic)
	for _, tier := range domain.Tiers {
		res.Results[strings.ToLower(string(tier))] = r.runTier(ctx, topic, tier)
	}
	res.Timestamp = r.now().UTC()
	return res
}

func (r *Runner) runTier(ctx context.Context, topic domain.Topic, tier domain.Tier) TierResult {
	label := strings.ToLower(string(tier))

	c, err := r.generator.Generate(ctx, topic, tier)
	if err != nil {
		logger.Error("runner: generation failed", "topic", topic, "tier", tier, "error", err)
		metrics.DispatchRunsTotal.WithLabelValues(label, "generation_failed").Inc()
		return TierResult{Error: err.Error()}
	}
	out := TierResult{Generated: true}

	subs, err := r.audience.Eligible(ctx, topic, tier)
	if err != nil {
		logger.Error("runner: selection failed", "topic", topic, "tier", tier, "error", err)
		metrics.DispatchRunsTotal.WithLabelValues(label, "dispatch_failed").Inc()
		out.Error = err.Error()
		return out
	}

	nl, err := r.newsletters.Start(ctx, newsletter.StartInput{
		Content:     c,
		Topic:       topic,
		TargetTier:  tier,
		AIGenerated: true,
	})
	if err != nil {
		metrics.DispatchRunsTotal.WithLabelValues(label, "dispatch_failed").Inc()
		out.Error = err.Error()
		return out
	}
	out.NewsletterID = nl.ID

	report, err := r.strategy.Dispatch(ctx, nl, subs)
	if report != nil {
		out.Sent, out.Failed, out.Queued = report.Sent, report.Failed, report.Queued
	}
	if err != nil {
		r.abort(ctx, nl.ID, err)
		metrics.DispatchRunsTotal.WithLabelValues(label, "dispatch_failed").Inc()
		out.Error = err.Error()
		return out
	}

	outcome := "sent"
	if len(subs) == 0 {
		outcome = "empty"
	}
	metrics.DispatchRunsTotal.WithLabelValues(label, outcome).Inc()
	return out
}

// AdminSendInput is an operator send: composed content plus an optional
// audience narrowing.
type AdminSendInput struct {
	content.AdminInput
	SubscriberIDs []string `json:"subscriberIds"`
	TargetTopics  []string `json:"targetTopics"`
}

// AdminResult is the outcome of an operator send.
type AdminResult struct {
	NewsletterID string `json:"newsletterId"`
	SentCount    int    `json:"sentCount"`
	FailedCount  int    `json:"failedCount"`
	QueuedCount  int    `json:"queuedCount,omitempty"`
	Recipients   int    `json:"recipients"`
	Targeted     bool   `json:"targeted"`
}

// RunAdmin composes and sends an operator newsletter. Validation errors
// are returned before anything is stored.
func (r *Runner) RunAdmin(ctx context.Context, in AdminSendInput) (*AdminResult, error) {
	topics, err := domain.ParseTopics(in.TargetTopics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopic, err)
	}
	c, err := r.composer.Compose(ctx, in.AdminInput)
	if err != nil {
		return nil, err
	}

	subs, targeted, err := r.audience.Targeted(ctx, segment.Target{SubscriberIDs: in.SubscriberIDs, Topics: topics})
	if err != nil {
		return nil, err
	}
	if targeted && len(subs) == 0 {
		return nil, ErrNoAudience
	}

	var topic domain.Topic
	if len(topics) == 1 {
		topic = topics[0]
	}
	nl, err := r.newsletters.Start(ctx, newsletter.StartInput{
		Content:    c,
		Topic:      topic,
		TargetTier: domain.TierFree,
	})
	if err != nil {
		return nil, err
	}

	res := &AdminResult{NewsletterID: nl.ID, Recipients: len(subs), Targeted: targeted}
	report, err := r.strategy.Dispatch(ctx, nl, subs)
	if report != nil {
		res.SentCount, res.FailedCount, res.QueuedCount = report.Sent, report.Failed, report.Queued
	}
	if err != nil {
		r.abort(ctx, nl.ID, err)
		metrics.DispatchRunsTotal.WithLabelValues("admin", "dispatch_failed").Inc()
		return res, err
	}
	metrics.DispatchRunsTotal.WithLabelValues("admin", "sent").Inc()
	logger.Info("runner: admin send", "newsletter_id", nl.ID, "recipients", len(subs), "targeted", targeted)
	return res, nil
}

// abort fails the newsletter after a dispatch error. Cancelled runs are
// left in SENDING for Recovery to finish.
func (r *Runner) abort(ctx context.Context, id string, cause error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		logger.Warn("runner: dispatch interrupted", "newsletter_id", id, "error", cause)
		return
	}
	if err := r.newsletters.MarkFailed(ctx, id, cause); err != nil {
		logger.Error("runner: mark failed", "newsletter_id", id, "error", err)
	}
}
