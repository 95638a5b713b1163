package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/metrics"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/queue"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/subscriber"
)

// JobPublisher enqueues delivery jobs. *queue.Publisher implements it.
type JobPublisher interface {
	Publish(ctx context.Context, job queue.DeliveryJob) error
}

// QueueDispatcher plans deliveries and hands them to workers.
type QueueDispatcher struct {
	logs        LogRepository
	newsletters Newsletters
	publisher   JobPublisher
	finalizer   *Finalizer
	now         func() time.Time
}

// NewQueueDispatcher wires a queue-mode dispatcher.
func NewQueueDispatcher(logs LogRepository, newsletters Newsletters, publisher JobPublisher, finalizer *Finalizer) *QueueDispatcher {
	return &QueueDispatcher{
		logs:        logs,
		newsletters: newsletters,
		publisher:   publisher,
		finalizer:   finalizer,
		now:         time.Now,
	}
}

// Dispatch plans the deliveries and publishes one job per recipient
// without waiting for them. An empty audience is finalized immediately.
func (q *QueueDispatcher) Dispatch(ctx context.Context, nl *domain.Newsletter, subs []domain.Subscriber) (*Report, error) {
	report := &Report{NewsletterID: nl.ID, Planned: len(subs)}
	if err := plan(ctx, q.logs, q.newsletters, nl, subs); err != nil {
		return report, err
	}

	if len(subs) == 0 {
		done, err := q.finalizer.Finalize(ctx, nl.ID)
		report.Complete = done
		return report, err
	}

	enqueuedAt := q.now().UTC()
	for i := range subs {
		job := queue.DeliveryJob{NewsletterID: nl.ID, SubscriberID: subs[i].ID, EnqueuedAt: enqueuedAt}
		if err := q.publisher.Publish(ctx, job); err != nil {
			return report, fmt.Errorf("enqueue after %d of %d: %w", report.Queued, len(subs), err)
		}
		report.Queued++
	}
	logger.Info("dispatch: queued", "newsletter_id", nl.ID, "jobs", report.Queued)
	return report, nil
}

// JobHandler processes queued delivery jobs on a worker.
type JobHandler struct {
	newsletters Newsletters
	subscribers SubscriberLookup
	logs        LogRepository
	deliverer   *Deliverer
	finalizer   *Finalizer
}

// NewJobHandler wires a JobHandler.
func NewJobHandler(newsletters Newsletters, subscribers SubscriberLookup, logs LogRepository, deliverer *Deliverer, finalizer *Finalizer) *JobHandler {
	return &JobHandler{
		newsletters: newsletters,
		subscribers: subscribers,
		logs:        logs,
		deliverer:   deliverer,
		finalizer:   finalizer,
	}
}

// Handle delivers one job and tries to finalize its newsletter. Errors are
// transient and the job should be retried; duplicates are absorbed by the
// log claim.
func (h *JobHandler) Handle(ctx context.Context, job queue.DeliveryJob) error {
	nl, err := h.newsletters.Get(ctx, job.NewsletterID)
	if errors.Is(err, newsletter.ErrNotFound) {
		metrics.QueueJobsTotal.WithLabelValues("dropped").Inc()
		logger.Warn("dispatch: job for unknown newsletter", "job", job.Key())
		return nil
	}
	if err != nil {
		metrics.QueueJobsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load newsletter: %w", err)
	}
	if nl.Status != domain.NewsletterSending {
		metrics.QueueJobsTotal.WithLabelValues("dropped").Inc()
		logger.Debug("dispatch: job for closed newsletter", "job", job.Key(), "status", nl.Status)
		return nil
	}

	sub, err := h.subscribers.Get(ctx, job.SubscriberID)
	switch {
	case errors.Is(err, subscriber.ErrNotFound):
		if err := h.logs.MarkFailed(ctx, nl.ID, job.SubscriberID, "subscriber not found"); err != nil {
			metrics.QueueJobsTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.QueueJobsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return h.finalize(ctx, nl.ID)
	case err != nil:
		metrics.QueueJobsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load subscriber: %w", err)
	}

	outcome, err := h.deliverer.Deliver(ctx, nl, sub)
	if err != nil {
		metrics.QueueJobsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.QueueJobsTotal.WithLabelValues(string(outcome)).Inc()
	return h.finalize(ctx, nl.ID)
}

func (h *JobHandler) finalize(ctx context.Context, newsletterID string) error {
	_, err := h.finalizer.Finalize(ctx, newsletterID)
	return err
}
