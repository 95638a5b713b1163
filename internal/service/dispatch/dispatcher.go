package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// DefaultBatchSize is the number of recipients delivered concurrently.
const DefaultBatchSize = 50

// Report summarizes what a Dispatch call did. In queue mode deliveries
// happen later and only Queued is set.
type Report struct {
	NewsletterID string `json:"newsletterId"`
	Planned      int    `json:"planned"`
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Queued       int    `json:"queued,omitempty"`
	Complete     bool   `json:"complete"`
}

// Strategy delivers a started newsletter to subs. Dispatcher and
// QueueDispatcher implement it.
type Strategy interface {
	Dispatch(ctx context.Context, nl *domain.Newsletter, subs []domain.Subscriber) (*Report, error)
}

// Dispatcher delivers inline, one batch at a time.
type Dispatcher struct {
	logs        LogRepository
	newsletters Newsletters
	deliverer   *Deliverer
	finalizer   *Finalizer
	batchSize   int
}

// NewDispatcher wires a direct-mode dispatcher.
func NewDispatcher(logs LogRepository, newsletters Newsletters, deliverer *Deliverer, finalizer *Finalizer, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		logs:        logs,
		newsletters: newsletters,
		deliverer:   deliverer,
		finalizer:   finalizer,
		batchSize:   batchSize,
	}
}

// Dispatch plans the deliveries, sends them in batches and finalizes the
// newsletter. Recipients within a batch are sent concurrently; batches run
// in sequence. A cancelled ctx stops new batches; recipients not reached
// stay PENDING for Recovery.
func (d *Dispatcher) Dispatch(ctx context.Context, nl *domain.Newsletter, subs []domain.Subscriber) (*Report, error) {
	report := &Report{NewsletterID: nl.ID, Planned: len(subs)}
	if err := plan(ctx, d.logs, d.newsletters, nl, subs); err != nil {
		return report, err
	}

	for start := 0; start < len(subs); start += d.batchSize {
		if err := ctx.Err(); err != nil {
			logger.Warn("dispatch: stopped before batch", "newsletter_id", nl.ID, "offset", start, "error", err)
			return report, err
		}
		end := min(start+d.batchSize, len(subs))
		d.runBatch(ctx, nl, subs[start:end], report)
	}

	done, err := d.finalizer.Finalize(ctx, nl.ID)
	if err != nil {
		return report, err
	}
	report.Complete = done
	logger.Info("dispatch: run finished",
		"newsletter_id", nl.ID,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"complete", done,
	)
	return report, nil
}

func (d *Dispatcher) runBatch(ctx context.Context, nl *domain.Newsletter, batch []domain.Subscriber, report *Report) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range batch {
		sub := &batch[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := d.deliverer.Deliver(ctx, nl, sub)
			if err != nil {
				logger.Error("dispatch: delivery left in flight", "newsletter_id", nl.ID, "subscriber_id", sub.ID, "error", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSent:
				report.Sent++
			case OutcomeFailed:
				report.Failed++
			case OutcomeSkipped:
				report.Skipped++
			}
		}()
	}
	wg.Wait()
}

// plan writes the PENDING logs and records the expected recipient count.
func plan(ctx context.Context, logs LogRepository, newsletters Newsletters, nl *domain.Newsletter, subs []domain.Subscriber) error {
	ids := make([]string, len(subs))
	for i := range subs {
		ids[i] = subs[i].ID
	}
	inserted, err := logs.Plan(ctx, nl, emailTypeOf(nl), ids)
	if err != nil {
		return fmt.Errorf("plan deliveries for %s: %w", nl.ID, err)
	}
	if err := newsletters.SetExpectedRecipients(ctx, nl.ID, len(subs)); err != nil {
		return fmt.Errorf("record expected recipients for %s: %w", nl.ID, err)
	}
	logger.Info("dispatch: planned", "newsletter_id", nl.ID, "recipients", len(subs), "inserted", inserted)
	return nil
}

func emailTypeOf(nl *domain.Newsletter) domain.EmailType {
	if nl.AIGenerated {
		return domain.EmailTypeNewsletter
	}
	return domain.EmailTypeAdminNewsletter
}
