package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the webhook, scheduling API, health and metrics endpoints.
func NewRouter(webhooks *WebhookHandler, scheduler *SchedulerHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(PrometheusMetricsMiddleware)

		r.Route("/webhooks/{provider_name}", func(r chi.Router) {
			r.Get("/", webhooks.VerifySubscription)
			r.Post("/", webhooks.HandleReceipts)
		})

		r.Route("/v1", func(r chi.Router) {
			r.Post("/media", scheduler.UploadMedia)
			r.Route("/scheduled-messages", func(r chi.Router) {
				r.Post("/", scheduler.CreateScheduledMessage)
				r.Get("/", scheduler.ListScheduledMessages)
				r.Get("/{id}", scheduler.GetScheduledMessage)
			})
		})
	})
	return r
}
