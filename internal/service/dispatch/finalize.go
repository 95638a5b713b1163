package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/service/newsletter"
)

// Finalizer completes newsletters whose deliveries have all reached an
// outcome.
type Finalizer struct {
	logs        LogRepository
	newsletters Newsletters
	now         func() time.Time
}

// NewFinalizer wires a Finalizer.
func NewFinalizer(logs LogRepository, newsletters Newsletters) *Finalizer {
	return &Finalizer{logs: logs, newsletters: newsletters, now: time.Now}
}

// Finalize marks the newsletter SENT once no log is PENDING or SENDING.
// It reports whether the newsletter is complete and is safe to call
// repeatedly and concurrently.
func (f *Finalizer) Finalize(ctx context.Context, newsletterID string) (bool, error) {
	nl, err := f.newsletters.Get(ctx, newsletterID)
	if err != nil {
		return false, fmt.Errorf("finalize %s: %w", newsletterID, err)
	}
	if nl.IsTerminal() {
		return true, nil
	}
	if nl.Status != domain.NewsletterSending {
		return false, nil
	}

	tally, err := f.logs.Tally(ctx, newsletterID)
	if err != nil {
		return false, fmt.Errorf("tally %s: %w", newsletterID, err)
	}
	if tally.InFlight() > 0 {
		return false, nil
	}

	// Recipients first: if this fails the newsletter stays SENDING and the
	// next attempt repeats both steps.
	if _, err := f.logs.TouchRecipients(ctx, newsletterID, f.now().UTC()); err != nil {
		return false, fmt.Errorf("touch recipients %s: %w", newsletterID, err)
	}
	if err := f.newsletters.MarkSent(ctx, newsletterID, tally.Attempted()); err != nil {
		if errors.Is(err, newsletter.ErrInvalidTransition) {
			return true, nil
		}
		return false, err
	}
	logger.Info("dispatch: finalized", "newsletter_id", newsletterID, "sent", tally.Sent, "failed", tally.Failed)
	return true, nil
}
