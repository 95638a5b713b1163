package content

import (
	"context"
	"fmt"
	"time"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/llm"
	"github.com/newsly/newsly/internal/metrics"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// HeadlineSource supplies grounding headlines. news.Service implements it.
type HeadlineSource interface {
	Headlines(ctx context.Context, topic domain.Topic, limit int) ([]domain.Headline, error)
}

// Renderer fills ContentHTML and ContentJSON. mailer.Renderer implements it.
type Renderer interface {
	RenderContent(c *domain.Content) error
}

// Generator produces AI content for a topic and tier.
type Generator interface {
	Generate(ctx context.Context, topic domain.Topic, tier domain.Tier) (*domain.Content, error)
}

// AIGenerator generates newsletters with a language model.
type AIGenerator struct {
	client    llm.Client
	news      HeadlineSource
	render    Renderer
	maxTokens int
	headlines int
	timeout   time.Duration
}

// AIOptions tune generation.
type AIOptions struct {
	MaxTokens int
	Headlines int
	Timeout   time.Duration
}

// NewAIGenerator wires a generator. news may be nil to skip grounding.
func NewAIGenerator(client llm.Client, news HeadlineSource, render Renderer, opts AIOptions) *AIGenerator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &AIGenerator{
		client:    client,
		news:      news,
		render:    render,
		maxTokens: opts.MaxTokens,
		headlines: opts.Headlines,
		timeout:   opts.Timeout,
	}
}

// Generate asks the model for a newsletter on topic, written for tier.
func (g *AIGenerator) Generate(ctx context.Context, topic domain.Topic, tier domain.Tier) (*domain.Content, error) {
	if !topic.Valid() || !tier.Valid() {
		return nil, fmt.Errorf("generate: invalid topic %q or tier %q", topic, tier)
	}

	var headlines []domain.Headline
	if g.news != nil && g.headlines > 0 {
		h, err := g.news.Headlines(ctx, topic, g.headlines)
		if err != nil {
			logger.Warn("content: headlines unavailable, generating without grounding", "topic", topic, "error", err)
		} else {
			headlines = h
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(topic, tier, headlines),
		MaxTokens:   g.maxTokens,
		Temperature: 0.7,
		JSON:        true,
	})
	metrics.ObserveGeneration(g.client.Provider(), start)
	if err != nil {
		return nil, fmt.Errorf("generate %s/%s: %w", topic, tier, err)
	}

	c, err := parseContent(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("generate %s/%s: %w", topic, tier, err)
	}
	if want := sectionCount(tier); len(c.Sections) != want {
		logger.Debug("content: section count differs from request", "tier", tier, "want", want, "got", len(c.Sections))
	}
	if err := g.render.RenderContent(c); err != nil {
		return nil, err
	}
	logger.Info("content: generated", "topic", topic, "tier", tier,
		"sections", len(c.Sections), "provider", g.client.Provider(),
		"duration", time.Since(start).Round(time.Millisecond))
	return c, nil
}
