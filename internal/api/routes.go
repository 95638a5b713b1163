package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newsly/newsly/internal/auth"
	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/pkg/httputil"
)

// NewRouter configures all routes.
func NewRouter(cfg config.ServerConfig, d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handlers{deps: d}
	health := NewHealthChecker(d.DB, d.Redis, d.Broker)

	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	verifier := d.Verifier
	if verifier == nil {
		verifier = auth.NewVerifier(d.Auth.AdminJWTSecret)
	}
	admin := auth.RequireAdmin(verifier)

	links := d.Links
	if links == nil {
		links = auth.NewVerifier(d.Auth.LinkSecret)
	}
	subscriberLink := auth.RequireSubscriber(links)

	perMin := cfg.PublicRatePerMin
	if perMin <= 0 {
		perMin = 20
	}
	public := httprate.Limit(perMin, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.Error(w, http.StatusTooManyRequests, "too many requests")
		}),
	)

	r.Route("/api", func(r chi.Router) {
		r.With(auth.RequireCronSecret(d.Auth.CronSecret, d.Auth.RequireCronSecret)).
			Post("/newsletter/auto", h.handleAuto)

		r.Group(func(r chi.Router) {
			r.Use(public)
			r.Post("/subscribe", h.handleSubscribe)
			r.Post("/unsubscribe", h.handleUnsubscribe)

			r.With(subscriberLink).Post("/unsubscribe/one-click", h.handleOneClickUnsubscribe)
			r.With(subscriberLink).Put("/subscribers/preferences", h.handleUpdatePreferences)
		})

		r.Get("/news", h.handleNews)

		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.Post("/newsletter/send", h.handleAdminSend)
			r.Get("/newsletters", h.handleListNewsletters)
			r.Get("/newsletters/{id}", h.handleGetNewsletter)

			r.Get("/subscribers", h.handleListSubscribers)
			r.Delete("/subscribers/{id}", h.handleDeleteSubscriber)
			r.Put("/subscribers/{id}/tier", h.handleChangeTier)

			r.Route("/billing/transactions", func(r chi.Router) {
				r.Get("/", h.handleListTransactions)
				r.Post("/", h.handleRecordTransaction)
				r.Post("/confirm", h.handleConfirmTransaction)
				r.Post("/fail", h.handleFailTransaction)
				r.Post("/refund", h.handleRefundTransaction)
			})
		})
	})

	return r
}
