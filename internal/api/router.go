package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/delegatewatch/delegatewatch/internal/api/handlers"
	"github.com/delegatewatch/delegatewatch/internal/api/middleware"
	"github.com/delegatewatch/delegatewatch/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.NewAPIKeyAuth(cfg.Auth).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.GetVersion)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/delegation", h.RecordDelegation)
			r.Post("/direct", h.RecordDirectAction)
		})

		r.Get("/stats", h.GetStats)
		r.Get("/report", h.GetReport)
		r.Get("/status", h.GetStatus)

		r.Route("/threshold", func(r chi.Router) {
			r.Get("/", h.GetThreshold)
			r.Put("/", h.SetThreshold)
		})

		r.Post("/reset", h.ResetTracking)

		r.Route("/reminder", func(r chi.Router) {
			r.Post("/check", h.CheckReminder)
			r.Get("/interval", h.GetReminderInterval)
			r.Put("/interval", h.SetReminderInterval)
			r.Post("/reset", h.ResetReminder)
		})
	})

	return r
}
