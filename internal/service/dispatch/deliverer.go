package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/mailer"
	"github.com/newsly/newsly/internal/metrics"
	"github.com/newsly/newsly/internal/pkg/logger"
	"golang.org/x/time/rate"
)

// Outcome is the result of one delivery.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// EmailRenderer personalizes a newsletter for one subscriber.
// *mailer.Renderer implements it.
type EmailRenderer interface {
	RenderEmail(d mailer.EmailData) (string, error)
	UnsubscribeURL(email string) string
	OneClickUnsubscribeURL(email string) string
}

// Identity is the sender identity stamped on every message.
type Identity struct {
	FromName  string
	FromEmail string
	ReplyTo   string
}

// Deliverer performs single deliveries. It is safe for concurrent use.
type Deliverer struct {
	logs    LogRepository
	sender  mailer.Sender
	render  EmailRenderer
	from    Identity
	limiter *rate.Limiter
	now     func() time.Time
}

// NewDeliverer wires a Deliverer. maxPerSecond > 0 paces sends across
// every goroutine sharing this Deliverer.
func NewDeliverer(logs LogRepository, sender mailer.Sender, render EmailRenderer, from Identity, maxPerSecond float64) *Deliverer {
	d := &Deliverer{
		logs:   logs,
		sender: sender,
		render: render,
		from:   from,
		now:    time.Now,
	}
	if maxPerSecond > 0 {
		burst := int(maxPerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(maxPerSecond), burst)
	}
	return d
}

// Deliver claims, renders, sends and records one delivery. Provider and
// render failures are recorded on the log and reported as OutcomeFailed;
// the returned error is reserved for storage failures, which leave the
// log for Recovery.
func (d *Deliverer) Deliver(ctx context.Context, nl *domain.Newsletter, sub *domain.Subscriber) (Outcome, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	claimed, err := d.logs.Claim(ctx, nl.ID, sub.ID)
	if err != nil {
		return "", fmt.Errorf("claim %s/%s: %w", nl.ID, sub.ID, err)
	}
	if !claimed {
		metrics.EmailsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		logger.Debug("dispatch: delivery already claimed", "newsletter_id", nl.ID, "subscriber_id", sub.ID)
		return OutcomeSkipped, nil
	}

	html, err := d.render.RenderEmail(mailer.EmailData{
		Subject:     nl.Subject,
		PreviewText: nl.PreviewText,
		ContentHTML: nl.ContentHTML,
		Subscriber:  sub,
	})
	if err != nil {
		return d.fail(ctx, nl, sub, err)
	}

	// One-click (RFC 8058) is only advertised when a signed endpoint exists.
	headers := map[string]string{"List-Unsubscribe": "<" + d.render.UnsubscribeURL(sub.Email) + ">"}
	if oneClick := d.render.OneClickUnsubscribeURL(sub.Email); oneClick != "" {
		headers["List-Unsubscribe"] = "<" + oneClick + ">"
		headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	}
	res, err := d.sender.Send(ctx, &domain.EmailMessage{
		NewsletterID: nl.ID,
		SubscriberID: sub.ID,
		To:           sub.Email,
		FromName:     d.from.FromName,
		FromEmail:    d.from.FromEmail,
		ReplyTo:      d.from.ReplyTo,
		Subject:      nl.Subject,
		HTMLContent:  html,
		Headers:      headers,
	})
	if err != nil {
		return d.fail(ctx, nl, sub, err)
	}

	sentAt := res.SentAt
	if sentAt.IsZero() {
		sentAt = d.now()
	}
	if err := d.logs.MarkSent(ctx, nl.ID, sub.ID, res.MessageID, sentAt.UTC()); err != nil {
		return "", fmt.Errorf("mark sent %s/%s: %w", nl.ID, sub.ID, err)
	}
	metrics.EmailsTotal.WithLabelValues(string(OutcomeSent)).Inc()
	return OutcomeSent, nil
}

func (d *Deliverer) fail(ctx context.Context, nl *domain.Newsletter, sub *domain.Subscriber, cause error) (Outcome, error) {
	logger.Warn("dispatch: delivery failed",
		"newsletter_id", nl.ID,
		"subscriber_id", sub.ID,
		"email", sub.Email,
		"provider", d.sender.Name(),
		"error", cause,
	)
	if err := d.logs.MarkFailed(ctx, nl.ID, sub.ID, cause.Error()); err != nil {
		return "", fmt.Errorf("mark failed %s/%s: %w", nl.ID, sub.ID, err)
	}
	metrics.EmailsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	return OutcomeFailed, nil
}
