package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httputil"
	"github.com/newsly/newsly/internal/service/billing"
	"github.com/newsly/newsly/internal/service/dispatch"
	"github.com/newsly/newsly/internal/service/newsletter"
	"github.com/newsly/newsly/internal/service/subscriber"
)

// Runner starts dispatch runs. *dispatch.Runner implements it.
type Runner interface {
	RunAuto(ctx context.Context, topic domain.Topic) (*dispatch.AutoResult, error)
	RunAdmin(ctx context.Context, in dispatch.AdminSendInput) (*dispatch.AdminResult, error)
}

// Newsletters is the read side of *newsletter.Service.
type Newsletters interface {
	Get(ctx context.Context, id string) (*domain.Newsletter, error)
	List(ctx context.Context, f newsletter.ListFilter) ([]domain.Newsletter, int, error)
}

// Subscribers is implemented by *subscriber.Service.
type Subscribers interface {
	Subscribe(ctx context.Context, in subscriber.SubscribeInput) (*domain.Subscriber, bool, error)
	UpdatePreferences(ctx context.Context, email string, p subscriber.Preferences) (*domain.Subscriber, error)
	Unsubscribe(ctx context.Context, email string) error
	List(ctx context.Context, f subscriber.ListFilter) ([]domain.Subscriber, int, error)
	Delete(ctx context.Context, id string) error
	ChangeTier(ctx context.Context, id string, tier domain.Tier) (*domain.Subscriber, error)
}

// Billing is implemented by *billing.Service.
type Billing interface {
	Record(ctx context.Context, in billing.RecordInput) (*domain.Transaction, bool, error)
	Confirm(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error)
	Fail(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error)
	Refund(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error)
	List(ctx context.Context, subscriberID string) ([]domain.Transaction, error)
}

// Headlines is implemented by *news.Service.
type Headlines interface {
	Headlines(ctx context.Context, topic domain.Topic, limit int) ([]domain.Headline, error)
}

type handlers struct {
	deps Deps
}

var validate = validator.New()

// decode reads the JSON body into dst and runs struct validation. It
// writes the 400 itself and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !httputil.Decode(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:   "validation failed",
			Code:    "invalid_request",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	out := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["_"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// unavailable answers 503 for routes whose collaborator is not wired.
func unavailable(w http.ResponseWriter, what string) {
	httputil.Error(w, http.StatusServiceUnavailable, what+" not configured")
}
