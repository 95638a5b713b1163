package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newsly/newsly/internal/domain"
)

// parseContent extracts a newsletter from model output. Markdown code
// fences are stripped and the outermost {...} span is decoded. A missing
// subject or an empty section list is an error.
func parseContent(text string) (*domain.Content, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparsable)
	}

	var c domain.Content
	if err := json.Unmarshal([]byte(s[start:end+1]), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	c.Subject = strings.TrimSpace(c.Subject)
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnparsable)
	}

	sections := c.Sections[:0]
	for _, sec := range c.Sections {
		if strings.TrimSpace(sec.Title) == "" && strings.TrimSpace(sec.Body) == "" {
			continue
		}
		sections = append(sections, sec)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no sections", ErrUnparsable)
	}
	c.Sections = sections
	if c.CTA != nil && (c.CTA.Text == "" || c.CTA.URL == "") {
		c.CTA = nil
	}
	return &c, nil
}
