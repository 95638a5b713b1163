package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/newsly/newsly/internal/auth"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httputil"
	"github.com/newsly/newsly/internal/service/subscriber"
)

type subscriberResponse struct {
	Success    bool               `json:"success"`
	Subscriber *domain.Subscriber `json:"subscriber"`
	Message    string             `json:"message,omitempty"`
}

//	POST /api/subscribe
func (h *handlers) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	var req subscriber.SubscribeInput
	if !decode(w, r, &req) {
		return
	}
	sub, created, err := h.deps.Subscribers.Subscribe(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created {
		httputil.Created(w, subscriberResponse{Success: true, Subscriber: sub, Message: "Subscribed"})
		return
	}
	httputil.OK(w, subscriberResponse{Success: true, Subscriber: sub, Message: "Welcome back"})
}

type preferencesRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	subscriber.Preferences
}

//	PUT /api/subscribers/preferences?token=
//
// The link token names the subscriber; a body email must match it.
func (h *handlers) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	email, ok := linkEmail(w, r)
	if !ok {
		return
	}
	var req preferencesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email != "" && !strings.EqualFold(strings.TrimSpace(req.Email), email) {
		httputil.Forbidden(w, "link does not belong to this email")
		return
	}
	sub, err := h.deps.Subscribers.UpdatePreferences(r.Context(), email, req.Preferences)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, subscriberResponse{Success: true, Subscriber: sub})
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

//	POST /api/unsubscribe
func (h *handlers) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.deps.Subscribers.Unsubscribe(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, map[string]any{"success": true, "message": "Unsubscribed"})
}

//	POST /api/unsubscribe/one-click?token=
//
// Mail clients post "List-Unsubscribe=One-Click" as a form; the body is
// not needed since the token names the subscriber.
func (h *handlers) handleOneClickUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	email, ok := linkEmail(w, r)
	if !ok {
		return
	}
	if err := h.deps.Subscribers.Unsubscribe(r.Context(), email); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, map[string]any{"success": true, "message": "Unsubscribed"})
}

func linkEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Role != auth.RoleSubscriber {
		httputil.Unauthorized(w, "missing link token")
		return "", false
	}
	return claims.Subject, true
}

//	GET /api/subscribers?tier=&topic=&unsubscribed=&q=&page=&limit=
func (h *handlers) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	p := ParsePagination(r, 50, 500)
	q := r.URL.Query()
	f := subscriber.ListFilter{Search: q.Get("q"), Limit: p.Limit, Offset: p.Offset}
	if v := q.Get("tier"); v != "" {
		tier, err := domain.ParseTier(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		f.Tier = tier
	}
	if v := q.Get("topic"); v != "" {
		topic, err := domain.ParseTopic(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		f.Topic = topic
	}
	if v := q.Get("unsubscribed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "unsubscribed must be a boolean")
			return
		}
		f.Unsubscribed = &b
	}

	subs, total, err := h.deps.Subscribers.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscriber{}
	}
	httputil.OK(w, NewPaginatedResponse(subs, p, int64(total)))
}

//	DELETE /api/subscribers/{id}
func (h *handlers) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	if err := h.deps.Subscribers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

type tierRequest struct {
	Tier domain.Tier `json:"tier" validate:"required,oneof=FREE PRO PREMIUM"`
}

//	PUT /api/subscribers/{id}/tier
func (h *handlers) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	if h.deps.Subscribers == nil {
		unavailable(w, "subscribers")
		return
	}
	var req tierRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.deps.Subscribers.ChangeTier(r.Context(), chi.URLParam(r, "id"), req.Tier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, subscriberResponse{Success: true, Subscriber: sub})
}
