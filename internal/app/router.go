package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/modules/workspace"
	"github.com/dmitrymomot/crmkit/pkg/httpserver"
	"github.com/dmitrymomot/crmkit/pkg/requestid"
)

// Operational endpoints are served without tenant resolution in both
// resolution modes.
var skipPaths = []string{"/health", "/metrics"}

type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

type RouterConfig struct {
	Log          *slog.Logger
	Guard        Middleware
	ReadyTimeout time.Duration
	Checks       []httpserver.Check
	Routes       workspace.RouterOptions
}

// Router assembles the middleware chain and every route. Recoverer sits
// outside the guard so the guard's teardown runs before a panic is turned
// into a 500.
func Router(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 3 * time.Second
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		middleware.RealIP,
		middleware.Recoverer,
		cfg.Guard.Middleware,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		core.WriteError(w, r, core.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		core.WriteError(w, r, core.NewHTTPError(http.StatusMethodNotAllowed, "method_not_allowed"))
	})

	r.Get("/health", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(cfg.Log, cfg.ReadyTimeout, cfg.Checks...))
	r.Handle("/metrics", promhttp.Handler())

	workspace.Router(r, cfg.Routes)
	return r
}
