// Package dashboard serves the station map UI and its JSON API.
package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the dashboard routes onto a chi router.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/", h.HandleIndex)
	r.Get("/healthz", h.HandleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/stations", h.HandleStations)
		api.Get("/filters", h.HandleFilters)
		api.Get("/metrics", h.HandleMetrics)
	})

	r.Get("/tiles/{z}/{x}/{y}.png", h.HandleTile)
	return r
}
