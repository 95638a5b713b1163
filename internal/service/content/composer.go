package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/newsly/newsly/internal/domain"
)

// ToolSource loads tools by id. The postgres tool repository implements it.
type ToolSource interface {
	GetTools(ctx context.Context, ids []string) ([]domain.Tool, error)
}

// AdminInput is an operator-composed newsletter.
type AdminInput struct {
	Title         string               `json:"title"`
	Subject       string               `json:"subject" validate:"required,max=200"`
	Intro         string               `json:"intro"`
	ToolIDs       []string             `json:"toolIds"`
	CustomContent string               `json:"customContent"`
	CTA           *domain.CallToAction `json:"cta"`
}

// Composer assembles admin newsletters from tools and free text.
type Composer struct {
	tools  ToolSource
	render Renderer
}

// NewComposer wires a Composer.
func NewComposer(tools ToolSource, render Renderer) *Composer {
	return &Composer{tools: tools, render: render}
}

// Compose builds content from in. The title defaults to the subject; tools
// keep the order the operator picked them in.
func (c *Composer) Compose(ctx context.Context, in AdminInput) (*domain.Content, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, ErrMissingSubject
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = subject
	}

	out := &domain.Content{
		Subject:     subject,
		PreviewText: in.Intro,
		Headline:    title,
		Intro:       in.Intro,
		CTA:         in.CTA,
	}
	if out.CTA != nil && (out.CTA.Text == "" || out.CTA.URL == "") {
		out.CTA = nil
	}

	if len(in.ToolIDs) > 0 {
		tools, err := c.tools.GetTools(ctx, in.ToolIDs)
		if err != nil {
			return nil, fmt.Errorf("load tools: %w", err)
		}
		byID := make(map[string]domain.Tool, len(tools))
		for _, t := range tools {
			byID[t.ID] = t
		}
		for _, id := range in.ToolIDs {
			t, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTool, id)
			}
			body := t.Description
			if t.Pricing != "" {
				body += "\nPricing: " + t.Pricing
			}
			out.Sections = append(out.Sections, domain.ContentSection{
				Title: t.Name,
				Body:  body,
				Link:  t.URL,
			})
		}
	}
	if custom := strings.TrimSpace(in.CustomContent); custom != "" {
		out.Sections = append(out.Sections, domain.ContentSection{Title: "From the editor", Body: custom})
	}

	if err := c.render.RenderContent(out); err != nil {
		return nil, err
	}
	return out, nil
}
