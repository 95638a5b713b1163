package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/metrics"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/queue"
)

const (
	// DefaultSweepInterval is how often Start runs a sweep.
	DefaultSweepInterval = time.Minute

	// DefaultStaleAge is how long a delivery may sit in flight before it
	// is considered abandoned.
	DefaultStaleAge = 15 * time.Minute

	// MaxAttempts is the number of claims a delivery gets before it is
	// failed instead of reset.
	MaxAttempts = 5
)

// RedeliverFunc retries one PENDING delivery of nl.
type RedeliverFunc func(ctx context.Context, nl *domain.Newsletter, subscriberID string) error

// DeliverInline redelivers on the calling goroutine. Used in direct mode.
func DeliverInline(subscribers SubscriberLookup, deliverer *Deliverer) RedeliverFunc {
	return func(ctx context.Context, nl *domain.Newsletter, subscriberID string) error {
		sub, err := subscribers.Get(ctx, subscriberID)
		if err != nil {
			return fmt.Errorf("load subscriber %s: %w", subscriberID, err)
		}
		_, err = deliverer.Deliver(ctx, nl, sub)
		return err
	}
}

// Republish puts the delivery back on the job queue. Used in queue mode.
func Republish(publisher JobPublisher) RedeliverFunc {
	return func(ctx context.Context, nl *domain.Newsletter, subscriberID string) error {
		return publisher.Publish(ctx, queue.DeliveryJob{
			NewsletterID: nl.ID,
			SubscriberID: subscriberID,
			EnqueuedAt:   time.Now().UTC(),
		})
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Reset       int
	Abandoned   int
	Redelivered int
	Finalized   int
}

// Recovery reclaims deliveries stuck after a crash and finishes newsletters
// left in SENDING.
type Recovery struct {
	logs        LogRepository
	newsletters Newsletters
	finalizer   *Finalizer
	redeliver   RedeliverFunc
	staleAge    time.Duration
	interval    time.Duration
	now         func() time.Time
}

// NewRecovery wires a Recovery. Non-positive durations use the defaults.
func NewRecovery(logs LogRepository, newsletters Newsletters, finalizer *Finalizer, redeliver RedeliverFunc, staleAge, interval time.Duration) *Recovery {
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Recovery{
		logs:        logs,
		newsletters: newsletters,
		finalizer:   finalizer,
		redeliver:   redeliver,
		staleAge:    staleAge,
		interval:    interval,
		now:         time.Now,
	}
}

// Start sweeps every interval until ctx is cancelled.
func (r *Recovery) Start(ctx context.Context) {
	logger.Info("recovery: starting", "interval", r.interval.String(), "stale_age", r.staleAge.String(), "max_attempts", MaxAttempts)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("recovery: stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				logger.Error("recovery: sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one recovery pass:
//  1. SENDING logs older than the stale age go back to PENDING, or to
//     FAILED once they have used MaxAttempts.
//  2. For every stale SENDING newsletter, old PENDING logs are redelivered
//     and the newsletter is finalized if nothing is left in flight. A
//     redelivered log is not picked up again until it is stale once more.
func (r *Recovery) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	cutoff := r.now().Add(-r.staleAge)

	abandoned, err := r.logs.AbandonStale(ctx, cutoff, MaxAttempts)
	if err != nil {
		return rep, fmt.Errorf("abandon stale deliveries: %w", err)
	}
	rep.Abandoned = abandoned

	reset, err := r.logs.ResetStale(ctx, cutoff, MaxAttempts)
	if err != nil {
		return rep, fmt.Errorf("reset stale deliveries: %w", err)
	}
	rep.Reset = reset
	metrics.RecoveredDeliveriesTotal.Add(float64(reset))

	stale, err := r.newsletters.ListStale(ctx, r.staleAge)
	if err != nil {
		return rep, fmt.Errorf("list stale newsletters: %w", err)
	}

	for i := range stale {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		nl := &stale[i]
		pending, err := r.logs.TakePending(ctx, nl.ID, cutoff, r.now())
		if err != nil {
			logger.Error("recovery: take pending", "newsletter_id", nl.ID, "error", err)
			continue
		}
		for _, subscriberID := range pending {
			if err := r.redeliver(ctx, nl, subscriberID); err != nil {
				logger.Warn("recovery: redelivery failed", "newsletter_id", nl.ID, "subscriber_id", subscriberID, "error", err)
				continue
			}
			rep.Redelivered++
		}

		done, err := r.finalizer.Finalize(ctx, nl.ID)
		if err != nil {
			logger.Error("recovery: finalize", "newsletter_id", nl.ID, "error", err)
			continue
		}
		if done {
			rep.Finalized++
		}
	}

	if rep != (SweepReport{}) {
		logger.Info("recovery: sweep",
			"reset", rep.Reset,
			"abandoned", rep.Abandoned,
			"redelivered", rep.Redelivered,
			"finalized", rep.Finalized,
		)
	}
	return rep, nil
}
