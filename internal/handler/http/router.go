package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicolaspannunzio/backend-I/internal/service"
	"github.com/nicolaspannunzio/backend-I/pkg/health"
	"github.com/nicolaspannunzio/backend-I/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the HTTP layer.
const ServiceName = "cart"

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	requestTimeout time.Duration,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Cart API endpoints
	cartHandler := NewCartHandler(cartService, logger)

	r.Route("/api/carts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", cartHandler.Create)
		r.Get("/", cartHandler.List)

		r.Route("/{cid}", func(r chi.Router) {
			r.Get("/", cartHandler.GetByID)
			r.Put("/", cartHandler.ReplaceItems)

			r.Post("/products/{pid}", cartHandler.AddItem)
			r.Put("/products/{pid}", cartHandler.SetItemQuantity)
			r.Delete("/products/{pid}", cartHandler.RemoveItem)
		})
	})

	return r
}
