package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whale-futures/config"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// The stream is long-lived and stays outside the request timeout
	r.Get("/api/stream", h.HandleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second))

		r.Get("/", h.HandleIndex)
		r.Get("/index.html", h.HandleIndex)

		// Metrics endpoint for Prometheus
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Get("/health", h.HandleHealth)

			// Positions table
			r.Get("/rows", h.HandleGetRows)
			r.Get("/rows.csv", h.HandleExportCSV)
			r.Post("/rows/archive", h.HandleArchiveCSV)

			// Trader UIDs
			r.Get("/uids", h.HandleGetUIDs)
			r.Post("/uids/refresh", h.HandleRefreshUIDs)

			r.Post("/prices/refresh", h.HandleRefreshPrices)

			// AI summaries
			r.Route("/ai", func(r chi.Router) {
				r.Post("/recommend", h.HandleRecommend)
				r.Post("/recommend-orders", h.HandleRecommendOrders)
				r.Get("/history", h.HandleGetHistory)
			})

			// Settings
			r.Route("/settings/api-key", func(r chi.Router) {
				r.Get("/", h.HandleGetAPIKey)
				r.Put("/", h.HandleUpdateAPIKey)
				r.Delete("/", h.HandleDeleteAPIKey)
			})
		})
	})

	return r
}
