package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/newsly/newsly/internal/news"
	"github.com/newsly/newsly/internal/pkg/httputil"
	"github.com/newsly/newsly/internal/pkg/logger"
	"github.com/newsly/newsly/internal/service/billing"
	"github.com/newsly/newsly/internal/service/content"
	"github.com/newsly/newsly/internal/service/dispatch"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/subscriber"
)

var (
	badRequest = []error{
		subscriber.ErrInvalidEmail,
		subscriber.ErrInvalidTier,
		subscriber.ErrTopicNotAllowed,
		billing.ErrInvalidInput,
		content.ErrMissingSubject,
		content.ErrUnknownTool,
		newsletter.ErrMissingSubject,
		dispatch.ErrInvalidTopic,
		dispatch.ErrNoAudience,
	}
	notFound = []error{
		subscriber.ErrNotFound,
		newsletter.ErrNotFound,
		billing.ErrNotFound,
		news.ErrNoFeeds,
	}
	conflict = []error{
		subscriber.ErrAlreadyExists,
		billing.ErrInvalidTransition,
		newsletter.ErrInvalidTransition,
		dispatch.ErrRunInProgress,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeError maps service sentinels to status codes. Anything else is a
// logged 500 with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isAny(err, badRequest):
		httputil.BadRequest(w, err.Error())
	case isAny(err, notFound):
		httputil.NotFound(w, err.Error())
	case isAny(err, conflict):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("api: request timed out", "path", r.URL.Path, "error", err)
		httputil.Error(w, http.StatusGatewayTimeout, "request timed out")
	default:
		httputil.InternalError(w, err)
	}
}
