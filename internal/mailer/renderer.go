package mailer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/osteele/liquid"
)

//go:embed templates/content.liquid
var contentTemplate string

//go:embed templates/email.liquid
var emailTemplate string

var tierColors = map[domain.Tier]string{
	domain.TierFree:    "#6b7280",
	domain.TierPro:     "#2563eb",
	domain.TierPremium: "#b45309",
}

// Renderer turns content and subscribers into HTML with Liquid templates.
// Templates are parsed once; Renderer is safe for concurrent use.
type Renderer struct {
	content *liquid.Template
	email   *liquid.Template
	appName string
	baseURL string
	apiURL  string
	sign    LinkSigner
}

// LinkSigner returns the token proving a link was mailed to email.
type LinkSigner func(email string) (string, error)

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithSignedLinks adds sign's token to footer links and enables the
// one-click unsubscribe endpoint under apiURL. A nil sign is ignored.
func WithSignedLinks(apiURL string, sign LinkSigner) RendererOption {
	return func(r *Renderer) {
		if sign == nil {
			return
		}
		r.apiURL = strings.TrimRight(apiURL, "/")
		r.sign = sign
	}
}

// NewRenderer parses the built-in templates. baseURL is the public site
// used for unsubscribe and preference links.
func NewRenderer(appName, baseURL string, opts ...RendererOption) (*Renderer, error) {
	engine := liquid.NewEngine()

	content, err := engine.ParseString(contentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse content template: %w", err)
	}
	email, err := engine.ParseString(emailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}
	r := &Renderer{
		content: content,
		email:   email,
		appName: appName,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RenderContent renders the shared newsletter body. It also fills
// c.ContentHTML and c.ContentJSON.
func (r *Renderer) RenderContent(c *domain.Content) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	// Round-trip through JSON so templates see the json tag names.
	var bindings map[string]interface{}
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	if h, _ := bindings["headline"].(string); h == "" {
		bindings["headline"] = c.Subject
	}

	out, serr := r.content.RenderString(bindings)
	if serr != nil {
		return fmt.Errorf("render content: %w", serr)
	}
	c.ContentHTML = out
	c.ContentJSON = string(raw)
	return nil
}

// EmailData is the per-recipient input to RenderEmail.
type EmailData struct {
	Subject     string
	PreviewText string
	ContentHTML string
	Subscriber  *domain.Subscriber
}

// RenderEmail wraps the shared body in the personalized shell: greeting,
// tier badge, topic list, and unsubscribe/preferences links.
func (r *Renderer) RenderEmail(d EmailData) (string, error) {
	s := d.Subscriber
	out, serr := r.email.RenderString(liquid.Bindings{
		"app_name":        r.appName,
		"subject":         d.Subject,
		"preview_text":    d.PreviewText,
		"content_html":    d.ContentHTML,
		"name":            s.DisplayName(),
		"tier_label":      s.Tier.Label(),
		"tier_color":      tierColors[s.Tier],
		"topics":          s.TopicLabels(),
		"unsubscribe_url": r.UnsubscribeURL(s.Email),
		"preferences_url": r.PreferencesURL(s.Email),
	})
	if serr != nil {
		return "", fmt.Errorf("render email: %w", serr)
	}
	return out, nil
}

// UnsubscribeURL is the unsubscribe page link for email.
func (r *Renderer) UnsubscribeURL(email string) string {
	return r.link("/unsubscribe", email)
}

// PreferencesURL is the preference center link for email.
func (r *Renderer) PreferencesURL(email string) string {
	return r.link("/preferences", email)
}

// OneClickUnsubscribeURL is the RFC 8058 endpoint for email, or "" when
// links are unsigned.
func (r *Renderer) OneClickUnsubscribeURL(email string) string {
	token := r.token(email)
	if token == "" {
		return ""
	}
	return r.apiURL + "/api/unsubscribe/one-click?" + url.Values{"token": {token}}.Encode()
}

func (r *Renderer) link(path, email string) string {
	q := url.Values{"email": {email}}
	if token := r.token(email); token != "" {
		q.Set("token", token)
	}
	return r.baseURL + path + "?" + q.Encode()
}

func (r *Renderer) token(email string) string {
	if r.sign == nil {
		return ""
	}
	token, err := r.sign(email)
	if err != nil {
		logger.Warn("mailer: sign link failed", "error", err)
		return ""
	}
	return token
}
