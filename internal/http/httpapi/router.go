// Package httpapi assembles the chi router for the API server.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aiprofile/internal/http/handlers"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", app.BackendStatus)
		r.Route("/img", func(r chi.Router) {
			r.Post("/process", app.ImagesProcess)
			r.Post("/enqueue", app.ImagesEnqueue)
		})
		r.Get("/requests/{id}", app.RequestStatus)
	})

	return r
}
