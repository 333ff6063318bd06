package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tasktrail/internal/platform/metrics"
	"tasktrail/pkg/platform/httputil"
	request "tasktrail/pkg/platform/middleware/request"
	"tasktrail/pkg/platform/middleware/requesttime"
)

// Registrar mounts a feature's routes under /api.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig is everything the task API router needs.
type RouterConfig struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	API      []Registrar
}

// NewRouter wires the public endpoints of the task API. Handlers delegate to
// services; nothing here knows about tasks or users.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "API is working"})
		})
		for _, h := range cfg.API {
			h.Register(r)
		}
	})
	return r
}
