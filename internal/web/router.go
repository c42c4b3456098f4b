package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter mounts the full HTTP surface on a chi mux.
func NewRouter(h *Handlers, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger.Named("http")))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ws", h.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.State)
			r.Post("/submit", h.Submit)
			r.Post("/retry", h.Retry)
			r.Post("/summarize", h.Summarize)
			r.Post("/reset", h.Reset)
			r.Delete("/error", h.DismissError)
		})

		r.Patch("/settings", h.UpdateSettings)

		r.Route("/saves", func(r chi.Router) {
			r.Get("/", h.SaveList)
			r.Post("/{slot}", h.Save)
			r.Post("/{slot}/load", h.Load)
		})

		r.Route("/cost", func(r chi.Router) {
			r.Get("/budget", h.Budget)
			r.Get("/breakdown", h.CostBreakdown)
			r.Get("/report.csv", h.CostReport)
		})

		r.Get("/gallery", h.Gallery)
	})

	return r
}
