package content

import (
	"fmt"
	"strings"

	"github.com/newsly/newsly/internal/domain"
)

type tierProfile struct {
	sections int
	style    string
}

var profiles = map[domain.Tier]tierProfile{
	domain.TierFree: {
		sections: 3,
		style:    "Keep it concise: short paragraphs a reader can skim in two minutes.",
	},
	domain.TierPro: {
		sections: 5,
		style:    "Go into detail: explain why each item matters and add context a professional would want.",
	},
	domain.TierPremium: {
		sections: 7,
		style: "Be comprehensive and personal: include deeper analysis, actionable insights, and " +
			"2-3 concrete tips per section the reader can act on today.",
	},
}

const systemPrompt = `You are the editor of Newsly, a daily email newsletter.
You write accurate, engaging, plain-language content.
You always answer with a single JSON object and nothing else.`

const schemaHint = `Respond with JSON of exactly this shape:
{
  "subject": "email subject line, under 70 characters",
  "previewText": "inbox preview text, under 120 characters",
  "headline": "headline at the top of the email",
  "intro": "one short paragraph",
  "sections": [
    {"title": "section title", "content": "section body", "tips": ["optional tip"], "link": "optional source URL"}
  ],
  "cta": {"text": "button text", "url": "https://..."}
}`

// buildPrompt returns the user prompt for topic and tier. Headlines, when
// present, are listed as grounding material.
func buildPrompt(topic domain.Topic, tier domain.Tier, headlines []domain.Headline) string {
	p, ok := profiles[tier]
	if !ok {
		p = profiles[domain.TierFree]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write today's %s newsletter for our %s subscribers.\n", topic.Label(), tier.Label())
	fmt.Fprintf(&b, "Include exactly %d sections. %s\n", p.sections, p.style)
	if len(headlines) > 0 {
		b.WriteString("\nBase the content on these current headlines where relevant. Cite their links in the section \"link\" field:\n")
		for _, h := range headlines {
			fmt.Fprintf(&b, "- %s (%s) %s\n", h.Title, h.Source, h.Link)
		}
	}
	b.WriteString("\n")
	b.WriteString(schemaHint)
	return b.String()
}

// sectionCount is the number of sections requested for tier.
func sectionCount(tier domain.Tier) int {
	if p, ok := profiles[tier]; ok {
		return p.sections
	}
	return profiles[domain.TierFree].sections
}
