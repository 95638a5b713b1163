package domain

import "time"

// Tool is a product an operator can feature in an admin newsletter.
type Tool struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	URL         string    `json:"url" db:"url"`
	Category    string    `json:"category" db:"category"`
	Pricing     string    `json:"pricing" db:"pricing"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
