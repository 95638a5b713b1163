// Package mailer renders personalized newsletter emails and hands them to
// an email provider (AWS SES v2 or Resend).
package mailer

import (
	"context"
	"fmt"

	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/domain"
)

// Sender delivers one rendered message. A returned error means the
// provider did not accept the message; its text is recorded on the
// recipient's email log.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
	Name() string
}

// NewSender builds the provider selected in cfg.Email.Provider.
func NewSender(ctx context.Context, cfg *config.Config) (Sender, error) {
	switch cfg.Email.Provider {
	case "ses":
		return NewSESSender(ctx, cfg.SES)
	case "resend":
		return NewResendSender(cfg.Resend)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

func fromHeader(msg *domain.EmailMessage) string {
	if msg.FromName == "" {
		return msg.FromEmail
	}
	return fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
}
