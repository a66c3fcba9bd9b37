package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailfang/mailfang/internal/eventbus"
	"github.com/mailfang/mailfang/internal/observability"
	"github.com/mailfang/mailfang/internal/server/middleware"
	"github.com/mailfang/mailfang/internal/store"
)

// Config holds the settings needed to build the HTTP read API.
type Config struct {
	Addr        string
	CORSOrigins []string
	Store       *store.Store
	Bus         *eventbus.Bus
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
}

// New builds the chi-routed HTTP server exposing C9's read operations, C8's
// event bus, and the ops surface (/healthz, /metrics).
func New(cfg Config) *http.Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.MetricsMiddleware(cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := NewHandlers(cfg.Store, cfg.Bus)

	r.Get("/healthz", h.Health.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/emails", h.Email.List)
		r.Get("/emails/recipients/{address}/emails", h.Email.ListByRecipient)
		r.Get("/emails/{id}", h.Email.Get)
		r.Delete("/emails/{id}", h.Email.Delete)
		r.Delete("/emails", h.Email.DeleteAll)
		r.Get("/emails/{id}/raw", h.Email.Raw)
		r.Get("/emails/{id}/rendered", h.Email.Rendered)
		r.Get("/attachments/{id}", h.Attachment.Get)
		r.Get("/counts", h.Email.Counts)
		r.Get("/ws", h.WS.Serve)
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
