package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httpretry"
)

// ResendSender sends emails through the Resend HTTP API.
type ResendSender struct {
	apiKey  string
	baseURL string
	http    httpretry.HTTPDoer
	now     func() time.Time
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []resendTag       `json:"tags,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// NewResendSender creates a Resend sender with retrying transport.
func NewResendSender(cfg config.ResendConfig) (*ResendSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend: RESEND_API_KEY is required")
	}
	client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries)
	return NewResendSenderWithClient(cfg.APIKey, cfg.BaseURL, client), nil
}

// NewResendSenderWithClient builds a sender over an existing HTTP client.
func NewResendSenderWithClient(apiKey, baseURL string, client httpretry.HTTPDoer) *ResendSender {
	return &ResendSender{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		now:     time.Now,
	}
}

// Name implements Sender.
func (s *ResendSender) Name() string { return "resend" }

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	body, err := json.Marshal(resendRequest{
		From:    fromHeader(msg),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTMLContent,
		Text:    msg.TextContent,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
		Tags: []resendTag{
			{Name: "newsletter_id", Value: msg.NewsletterID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resend: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("resend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	// Retries reuse the key; Resend accepts each key once.
	if key := idempotencyKey(msg); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out resendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("resend: status %d: %s", resp.StatusCode, msg)
	}
	return &domain.SendResult{MessageID: out.ID, Provider: s.Name(), SentAt: s.now().UTC()}, nil
}

// idempotencyKey is the delivery's dedup key, stable across retries.
func idempotencyKey(msg *domain.EmailMessage) string {
	if msg.NewsletterID == "" || msg.SubscriberID == "" {
		return ""
	}
	return msg.NewsletterID + "/" + msg.SubscriberID
}
