package api

import (
	"net/http"
	"strconv"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httputil"
)

//	GET /api/news?topic=&limit=
func (h *handlers) handleNews(w http.ResponseWriter, r *http.Request) {
	if h.deps.News == nil {
		unavailable(w, "news")
		return
	}
	topic, err := domain.ParseTopic(r.URL.Query().Get("topic"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.deps.News.Headlines(r.Context(), topic, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Headline{}
	}
	httputil.OK(w, map[string]any{"success": true, "topic": topic, "articles": items})
}
