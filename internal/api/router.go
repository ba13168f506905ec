package api

import (
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/infrastructure/telemetry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(
	handlers *Handlers,
	admin *AdminHandlers,
	jwtService *auth.JWTService,
	metrics *telemetry.Metrics,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.Metrics(metrics))
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Products
	r.Get("/", handlers.ListProducts)
	r.Get("/products", handlers.ListProducts)
	r.Get("/products/{id}", handlers.GetProduct)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))
		r.Use(middleware.RequireRole(auth.RoleAdmin))
		r.Post("/products", handlers.CreateProduct)
		r.Delete("/products", handlers.DropProducts)
	})

	// Orders
	r.Post("/order", handlers.AddOrder)
	r.Get("/order/{id}", handlers.GetOrder)
	r.Put("/order/{id}", handlers.PutOrder)
	r.Get("/order/{id}/settlements", handlers.ListSettlements)

	// Admin
	r.Post("/admin/token", admin.IssueToken)

	return r
}
