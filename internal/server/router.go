package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cognidex/cognidex/internal/api"
	"github.com/cognidex/cognidex/internal/api/handlers"
	"github.com/cognidex/cognidex/internal/api/middleware"
)

type RouterConfig struct {
	CommitHandler   *handlers.CommitHandler
	DiscoverHandler *handlers.DiscoverHandler
	SessionHandler  *handlers.SessionHandler
	BackendsHandler *handlers.BackendsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/triples", cfg.CommitHandler.CreateTriple)
		r.Post("/embeddings", cfg.CommitHandler.CreateEmbedding)

		r.Post("/discover", cfg.DiscoverHandler.Discover)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/insights", cfg.SessionHandler.AppendInsight)
			r.Get("/history", cfg.SessionHandler.History)
		})

		r.Get("/backends", cfg.BackendsHandler.List)
	})

	return r
}
