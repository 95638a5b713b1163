package domain

import "time"

// EmailMessage is the fully-rendered message ready for a provider.
// By the time a message reaches this struct, all personalization is done.
type EmailMessage struct {
	NewsletterID string            `json:"newsletter_id"`
	SubscriberID string            `json:"subscriber_id"`
	To           string            `json:"to"`
	FromName     string            `json:"from_name"`
	FromEmail    string            `json:"from_email"`
	ReplyTo      string            `json:"reply_to,omitempty"`
	Subject      string            `json:"subject"`
	HTMLContent  string            `json:"html_content"`
	TextContent  string            `json:"text_content,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// SendResult is returned by a provider after accepting a message.
type SendResult struct {
	MessageID string    `json:"message_id"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sent_at"`
}
