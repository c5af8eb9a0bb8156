package webchat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Logger         *logging.Logger
	Chat           *Handler
	MetricsHandler http.Handler
}

// NewRouter creates a Chi router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	r.Route("/webchat", func(r chi.Router) {
		r.Post("/turn", cfg.Chat.HandleTurn)
	})

	return r
}
