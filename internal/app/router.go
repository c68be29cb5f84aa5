package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/registerpos/registerd/internal/api"
	"github.com/registerpos/registerd/internal/observability"
	"github.com/registerpos/registerd/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config     *Config
	Logger     *slog.Logger
	APIHandler *api.Handler
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter constructs the chi.Router with registerd defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.APIHandler != nil {
		r.Route("/api", params.APIHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
