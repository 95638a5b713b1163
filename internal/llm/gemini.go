package llm

import (
	"context"
	"fmt"

	"github.com/newsly/newsly/internal/pkg/logger"
	"google.golang.org/genai"
)

// ContentGenerator is the slice of genai.Models we use.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls Google Gemini models.
type GeminiClient struct {
	models ContentGenerator
	model  string
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	logger.Info("llm: gemini initialized", "model", model)
	return NewGeminiClientWithModels(client.Models, model), nil
}

// NewGeminiClientWithModels builds a client over an existing generator.
func NewGeminiClientWithModels(models ContentGenerator, model string) *GeminiClient {
	return &GeminiClient{models: models, model: model}
}

// Provider implements Client.
func (g *GeminiClient) Provider() string { return "gemini" }

// Complete implements Client.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}
	out := &Response{Text: text}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
