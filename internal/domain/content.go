package domain

// Content is a generated or composed newsletter body, shared by every
// recipient of a run before personalization.
type Content struct {
	Subject     string           `json:"subject"`
	PreviewText string           `json:"previewText"`
	Headline    string           `json:"headline"`
	Intro       string           `json:"intro"`
	Sections    []ContentSection `json:"sections"`
	CTA         *CallToAction    `json:"cta,omitempty"`
	ContentHTML string           `json:"-"`
	ContentJSON string           `json:"-"`
}

// ContentSection is one block of a newsletter body.
type ContentSection struct {
	Title string   `json:"title"`
	Body  string   `json:"content"`
	Tips  []string `json:"tips,omitempty"`
	Link  string   `json:"link"`
}

// CallToAction is the closing button of a newsletter.
type CallToAction struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Headline is a news item used to ground AI-generated content.
type Headline struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
	Summary     string `json:"summary,omitempty"`
}
