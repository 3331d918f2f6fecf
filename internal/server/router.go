package server

import (
	"net/http"

	"github.com/cloo-solutions/voicerag/internal/api/handlers"
	"github.com/cloo-solutions/voicerag/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	RetrievalHandler *handlers.RetrievalHandler
	// APIToken, when set, requires bearer authentication on /v1 routes.
	APIToken string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 64 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", cfg.RetrievalHandler.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIToken != "" {
			r.Use(middleware.BearerAuth(cfg.APIToken))
		}

		r.Post("/retrieve", cfg.RetrievalHandler.Retrieve)
		r.Post("/relevance", cfg.RetrievalHandler.Relevance)
	})

	return r
}
