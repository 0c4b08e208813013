package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/locadora/console/internal/audit/http"
	"github.com/locadora/console/internal/console"
	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/observability"
	"github.com/locadora/console/internal/platform/httpx"
	"github.com/locadora/console/jobs"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ConsoleHandler   *console.Handler
	InventoryHandler *inventory.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	// Readiness checks keyed by dependency name, reported by /readyz.
	Readiness map[string]Pinger
}

// NewRouter constructs the chi.Router with console defaults.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Readiness))

	r.Route("/api", func(r chi.Router) {
		if params.ConsoleHandler != nil {
			r.Route("/rentals", func(r chi.Router) {
				params.ConsoleHandler.MountRoutes(r, RefreshLimiter(6))
			})
			r.Get("/alerts", params.ConsoleHandler.HandleAlerts)
			r.Get("/reports/status", params.ConsoleHandler.HandleStatusReport)
		}
		if params.InventoryHandler != nil {
			r.Route("/stock", params.InventoryHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func readiness(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httpx.JSON(w, status, map[string]any{"checks": report})
	}
}
