package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httputil"
	"github.com/newsly/newsly/internal/service/dispatch"
	"github.com/newsly/newsly/internal/service/newsletter"
)

type autoRequest struct {
	Topic string `json:"topic"`
}

type autoResponse struct {
	Success   bool                           `json:"success"`
	Topic     domain.Topic                   `json:"topic"`
	Results   map[string]dispatch.TierResult `json:"results"`
	Timestamp time.Time                      `json:"timestamp"`
}

// handleAuto runs the scheduled send for every tier. Without a topic in
// the body the topic follows the current UTC hour.
//
//	POST /api/newsletter/auto
func (h *handlers) handleAuto(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runner == nil {
		unavailable(w, "dispatch")
		return
	}
	var req autoRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	topic := domain.TopicForHour(time.Now().UTC().Hour())
	if req.Topic != "" {
		t, err := domain.ParseTopic(req.Topic)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		topic = t
	}

	// A started run continues after the caller disconnects.
	res, err := h.deps.Runner.RunAuto(context.WithoutCancel(r.Context()), topic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, autoResponse{
		Success:   true,
		Topic:     res.Topic,
		Results:   res.Results,
		Timestamp: res.Timestamp,
	})
}

type adminSendResponse struct {
	Success      bool   `json:"success"`
	NewsletterID string `json:"newsletterId"`
	SentCount    int    `json:"sentCount"`
	FailedCount  int    `json:"failedCount"`
	QueuedCount  int    `json:"queuedCount,omitempty"`
	Recipients   int    `json:"recipients"`
	Targeted     bool   `json:"targeted"`
	Message      string `json:"message"`
}

// handleAdminSend composes and sends an operator newsletter.
//
//	POST /api/newsletter/send
func (h *handlers) handleAdminSend(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runner == nil {
		unavailable(w, "dispatch")
		return
	}
	var req dispatch.AdminSendInput
	if !decode(w, r, &req) {
		return
	}

	res, err := h.deps.Runner.RunAdmin(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := fmt.Sprintf("Newsletter sent to %d subscribers", res.SentCount)
	if res.QueuedCount > 0 {
		msg = fmt.Sprintf("Newsletter queued for %d subscribers", res.QueuedCount)
	}
	if res.FailedCount > 0 {
		msg += fmt.Sprintf(" (%d failed)", res.FailedCount)
	}
	httputil.OK(w, adminSendResponse{
		Success:      true,
		NewsletterID: res.NewsletterID,
		SentCount:    res.SentCount,
		FailedCount:  res.FailedCount,
		QueuedCount:  res.QueuedCount,
		Recipients:   res.Recipients,
		Targeted:     res.Targeted,
		Message:      msg,
	})
}

//	GET /api/newsletters?status=&tier=&topic=&page=&limit=
func (h *handlers) handleListNewsletters(w http.ResponseWriter, r *http.Request) {
	if h.deps.Newsletters == nil {
		unavailable(w, "newsletters")
		return
	}
	p := ParsePagination(r, 20, 100)
	q := r.URL.Query()
	f := newsletter.ListFilter{
		Status: domain.NewsletterStatus(q.Get("status")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v := q.Get("tier"); v != "" {
		tier, err := domain.ParseTier(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		f.TargetTier = tier
	}
	if v := q.Get("topic"); v != "" {
		topic, err := domain.ParseTopic(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		f.Topic = topic
	}

	items, total, err := h.deps.Newsletters.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Newsletter{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, int64(total)))
}

//	GET /api/newsletters/{id}
func (h *handlers) handleGetNewsletter(w http.ResponseWriter, r *http.Request) {
	if h.deps.Newsletters == nil {
		unavailable(w, "newsletters")
		return
	}
	nl, err := h.deps.Newsletters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, nl)
}
