package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig holds the pieces the router mounts.
type RouterConfig struct {
	Actions *ActionHandler
	Probes  []HealthProbe
	Logger  *slog.Logger
}

// NewRouter builds the chi router with the middleware chain, the health
// endpoint, and the versioned action routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(Recoverer(logger))
	r.Use(RequestID)
	r.Use(RequestLogger(logger))

	r.Get("/health", HealthHandler(cfg.Probes...))

	r.Route("/v1", func(r chi.Router) {
		if cfg.Actions != nil {
			cfg.Actions.RegisterRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		JSON(w, req, http.StatusNotFound, APIErrorResponse{
			Error: ErrorDetail{
				Code:    "not_found_route",
				Message: "no such endpoint",
			},
		})
	})

	return r
}
