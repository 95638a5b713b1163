package domain

import (
	"strings"
	"time"
)

// Subscriber is a newsletter recipient with a tier and topic preferences.
type Subscriber struct {
	ID                string     `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	Name              string     `json:"name,omitempty" db:"name"`
	Tier              Tier       `json:"tier" db:"tier"`
	Topics            []Topic    `json:"topics" db:"topics"`
	DailyDigest       bool       `json:"daily_digest" db:"daily_digest"`
	MarketingEmails   bool       `json:"marketing_emails" db:"marketing_emails"`
	Unsubscribed      bool       `json:"unsubscribed" db:"unsubscribed"`
	UnsubscribedAt    *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	PaymentCustomerID string     `json:"payment_customer_id,omitempty" db:"payment_customer_id"`
	LastEmailSent     *time.Time `json:"last_email_sent,omitempty" db:"last_email_sent"`
	SubscribedAt      time.Time  `json:"subscribed_at" db:"subscribed_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// HasTopic reports whether the subscriber has t enabled.
func (s *Subscriber) HasTopic(t Topic) bool {
	for _, have := range s.Topics {
		if have == t {
			return true
		}
	}
	return false
}

// HasAnyTopic reports whether the subscriber has at least one of ts enabled.
func (s *Subscriber) HasAnyTopic(ts []Topic) bool {
	for _, t := range ts {
		if s.HasTopic(t) {
			return true
		}
	}
	return false
}

// Eligible reports whether the subscriber should receive an automatic
// send for topic targeting tier.
func (s *Subscriber) Eligible(topic Topic, target Tier) bool {
	return !s.Unsubscribed && s.DailyDigest && s.Tier.Receives(target) && s.HasTopic(topic)
}

// DisplayName is the greeting name, falling back to "there".
func (s *Subscriber) DisplayName() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return "there"
}

// TopicLabels returns the display labels of the enabled topics.
func (s *Subscriber) TopicLabels() []string {
	out := make([]string, 0, len(s.Topics))
	for _, t := range s.Topics {
		out = append(out, t.Label())
	}
	return out
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
