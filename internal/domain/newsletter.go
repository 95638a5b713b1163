package domain

import "time"

// NewsletterStatus enumerates the lifecycle states of a newsletter.
type NewsletterStatus string

const (
	NewsletterDraft   NewsletterStatus = "DRAFT"
	NewsletterSending NewsletterStatus = "SENDING"
	NewsletterSent    NewsletterStatus = "SENT"
	NewsletterFailed  NewsletterStatus = "FAILED"
)

// newsletterTransitions is the single state machine for newsletters.
var newsletterTransitions = map[NewsletterStatus][]NewsletterStatus{
	NewsletterDraft:   {NewsletterSending},
	NewsletterSending: {NewsletterSent, NewsletterFailed},
}

// CanTransition reports whether from -> to is a legal newsletter transition.
func (s NewsletterStatus) CanTransition(to NewsletterStatus) bool {
	for _, next := range newsletterTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Newsletter is the record of one dispatch run.
type Newsletter struct {
	ID                 string           `json:"id" db:"id"`
	Subject            string           `json:"subject" db:"subject"`
	PreviewText        string           `json:"preview_text" db:"preview_text"`
	ContentHTML        string           `json:"content_html" db:"content_html"`
	ContentJSON        string           `json:"content_json,omitempty" db:"content_json"`
	Status             NewsletterStatus `json:"status" db:"status"`
	SentAt             *time.Time       `json:"sent_at,omitempty" db:"sent_at"`
	RecipientCount     int              `json:"recipient_count" db:"recipient_count"`
	ExpectedRecipients int              `json:"expected_recipients" db:"expected_recipients"`
	OpenRate           *float64         `json:"open_rate,omitempty" db:"open_rate"`
	ClickRate          *float64         `json:"click_rate,omitempty" db:"click_rate"`
	Topic              Topic            `json:"topic,omitempty" db:"topic"`
	TargetTier         Tier             `json:"target_tier" db:"target_tier"`
	AIGenerated        bool             `json:"ai_generated" db:"ai_generated"`
	ErrorMessage       string           `json:"error_message,omitempty" db:"error_message"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the newsletter is in a final state.
func (n *Newsletter) IsTerminal() bool {
	return n.Status == NewsletterSent || n.Status == NewsletterFailed
}
