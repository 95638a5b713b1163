// Package llm wraps the language-model backends Newsly generates content
// with. Callers depend on Client; Bedrock (Claude) and Gemini implement it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks the backend for a JSON object when it supports a response
	// format hint. Callers must still validate the output.
	JSON bool
}

// Response is the model output plus token accounting.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is a language-model backend.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Provider names the backend for logs and metrics.
	Provider() string
}

// Options configure backend construction.
type Options struct {
	Provider string // bedrock | gemini
	Region   string
	ModelID  string
	APIKey   string
}

// New builds the Client selected by opts.Provider, wrapped in a circuit
// breaker.
func New(ctx context.Context, opts Options) (Client, error) {
	var (
		c   Client
		err error
	)
	switch strings.ToLower(opts.Provider) {
	case "bedrock":
		c, err = NewBedrockClient(ctx, opts.Region, opts.ModelID)
	case "gemini":
		c, err = NewGeminiClient(ctx, opts.APIKey, opts.ModelID)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithBreaker(c), nil
}
