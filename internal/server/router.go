package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/ragsync/internal/api/handlers"
	"github.com/cloo-solutions/ragsync/internal/api/middleware"
)

type RouterConfig struct {
	// AuthValidator protects every route except /health. Nil leaves the API open.
	AuthValidator middleware.AuthValidator
	Logger        *slog.Logger
	HealthHandler *handlers.HealthHandler
	SearchHandler *handlers.SearchHandler
	IngestHandler *handlers.IngestHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", cfg.HealthHandler.Health)

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.APIKeyAuth(cfg.AuthValidator))
		}

		r.Post("/search", cfg.SearchHandler.Search)

		r.Route("/ingest", func(r chi.Router) {
			r.Post("/", cfg.IngestHandler.Ingest)
			r.Get("/runs", cfg.IngestHandler.ListRuns)
		})
	})

	return r
}
