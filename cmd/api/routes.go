package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/money-diary/pkg/httpx"
	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

// Pinger reports database health.
type Pinger interface {
	Health(ctx context.Context) error
}

// NewRouter builds the route table. Everything under the API prefix needs a
// bearer token; /healthz and /metrics do not.
func NewRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(interceptors.RequestLogger(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(interceptors.CORS(d.Config.Server.AllowedOrigins))

	r.Get("/healthz", healthz(d.DB))
	if d.Config.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route(d.Config.Server.APIPrefix, func(api chi.Router) {
		api.Use(interceptors.Auth([]byte(d.Config.Auth.JWTSecret), d.Config.Auth.Issuer, d.Logger))
		api.Use(d.RateLimiter.Middleware)

		api.Route("/import-profiles", func(pr chi.Router) {
			pr.Post("/detect", d.ImportHandler.Detect)
			d.ProfileHandler.Routes(pr)
		})
		api.Route("/description-patterns", d.PatternHandler.Routes)
		api.Route("/pattern-ignores", d.PatternHandler.IgnoreRoutes)
		api.Route("/transactions", d.ImportHandler.TransactionRoutes)
		api.Route("/file-imports", d.ImportHandler.FileImportRoutes)
		api.Route("/budget-summary", d.BudgetHandler.Routes)
	})

	return r
}

func healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := p.Health(ctx); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
