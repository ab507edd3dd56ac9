package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/mimir/internal/auth"
)

// NewRouter creates a chi router with all API routes mounted under /api.
// Registration, login, and health probes are open; everything else
// requires a valid Bearer token.
func NewRouter(h *Handler, authSvc *auth.Service) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authSvc))

			r.Post("/documents", h.UploadDocument)
			r.Get("/documents", h.ListDocuments)
			r.Post("/documents/batch_delete", h.BatchDeleteDocuments)
			r.Put("/documents/{id}", h.UpdateDocument)
			r.Delete("/documents/{id}", h.DeleteDocument)

			r.Post("/search", h.Search)

			r.Get("/report/keywords", h.KeywordReport)
			r.Get("/report/clustering", h.ClusteringReport)

			r.Post("/feeds", h.AddFeed)
			r.Get("/feeds", h.ListFeeds)
			r.Delete("/feeds/{id}", h.DeleteFeed)

			r.Get("/events", h.Events)
		})
	})

	return r
}
