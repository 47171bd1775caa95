package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"patientregistry/internal/platform/metrics"
	"patientregistry/internal/platform/middleware"
	"patientregistry/pkg/platform/httputil"
	"patientregistry/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

// RouteRegistrar mounts a module's routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps is everything the router needs. Gatherer defaults to the Prometheus
// default registry.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthChecker
	Modules        []RouteRegistrar
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the shared middleware chain, /health, /metrics and every module.
func NewRouter(deps Deps) http.Handler {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(deps.Metrics))
	}

	r.Get("/health", healthHandler(deps.HealthChecks))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if deps.RequestTimeout > 0 {
			r.Use(middleware.Timeout(deps.RequestTimeout))
		}
		for _, m := range deps.Modules {
			m.Register(r)
		}
	})
	return r
}

// healthHandler pings every checker concurrently and reports 503 if any fails.
func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		errs := make([]error, 0, len(checks))
		type outcome struct {
			name string
			err  error
		}
		outcomes := make(chan outcome, len(checks))

		g, gctx := errgroup.WithContext(ctx)
		for name, checker := range checks {
			g.Go(func() error {
				outcomes <- outcome{name: name, err: checker.Health(gctx)}
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)

		for o := range outcomes {
			if o.err != nil {
				results[o.name] = o.err.Error()
				errs = append(errs, o.err)
				continue
			}
			results[o.name] = "ok"
		}

		if len(errs) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Checks: results})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: results})
	}
}
