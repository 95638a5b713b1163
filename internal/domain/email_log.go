package domain

import "time"

// EmailType classifies an email log row.
type EmailType string

const (
	EmailTypeNewsletter      EmailType = "newsletter"
	EmailTypeAdminNewsletter EmailType = "admin_newsletter"
	EmailTypeWelcome         EmailType = "welcome"
)

// EmailLogStatus enumerates the lifecycle of one recipient's delivery.
type EmailLogStatus string

const (
	EmailPending   EmailLogStatus = "PENDING"
	EmailSending   EmailLogStatus = "SENDING"
	EmailSent      EmailLogStatus = "SENT"
	EmailFailed    EmailLogStatus = "FAILED"
	EmailDelivered EmailLogStatus = "DELIVERED"
)

// IsInFlight reports whether the delivery has not reached an outcome yet.
func (s EmailLogStatus) IsInFlight() bool {
	return s == EmailPending || s == EmailSending
}

// EmailLog records one recipient's delivery attempt for a newsletter.
// (NewsletterID, SubscriberID) is unique.
type EmailLog struct {
	ID                string         `json:"id" db:"id"`
	SubscriberID      string         `json:"subscriber_id" db:"subscriber_id"`
	NewsletterID      string         `json:"newsletter_id" db:"newsletter_id"`
	EmailType         EmailType      `json:"email_type" db:"email_type"`
	Subject           string         `json:"subject" db:"subject"`
	Status            EmailLogStatus `json:"status" db:"status"`
	ErrorMessage      string         `json:"error_message,omitempty" db:"error_message"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Attempts          int            `json:"attempts" db:"attempts"`
	SentAt            *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// LogTally counts a newsletter's logs by status.
type LogTally struct {
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// InFlight is the number of deliveries without an outcome.
func (t LogTally) InFlight() int { return t.Pending + t.Sending }

// Attempted is the number of deliveries that reached an outcome.
func (t LogTally) Attempted() int { return t.Sent + t.Failed }
