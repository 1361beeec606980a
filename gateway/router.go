// Package gateway exposes the operational HTTP surface of paysplitd.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paysplit/gateway/middleware"
)

// Config wires the ops router.
type Config struct {
	Logger *slog.Logger
	CORS   middleware.CORSConfig
}

// New builds the chi router serving the health and metrics probes.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := middleware.NewObservability(cfg.Logger)
	r.Use(obs.Middleware("ops"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", obs.MetricsHandler())

	return r
}
