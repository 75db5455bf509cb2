package guard

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/statemachine"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

var tracer = otel.Tracer("github.com/dmitrymomot/crmkit/svc/guard")

// Binder hands out request-scoped bindings. *switchboard.Switchboard implements it.
type Binder interface {
	NewBinding() *switchboard.Binding
}

// Guard is the tenant context middleware.
type Guard struct {
	resolver     tenant.Resolver
	binder       Binder
	log          *slog.Logger
	errorHandler ErrorHandler
	skipPaths    []string
	onState      func(ctx context.Context, s State)
	now          func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger used for rejected and failed requests.
func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

// WithErrorHandler replaces the JSON error responder.
func WithErrorHandler(h ErrorHandler) Option {
	return func(g *Guard) {
		if h != nil {
			g.errorHandler = h
		}
	}
}

// WithSkipPaths lets requests for any of the given paths, or anything below
// them, through without resolution, e.g. health probes.
func WithSkipPaths(prefixes ...string) Option {
	return func(g *Guard) { g.skipPaths = append(g.skipPaths, prefixes...) }
}

// WithStateHook observes every pipeline transition of every request.
func WithStateHook(fn func(ctx context.Context, s State)) Option {
	return func(g *Guard) { g.onState = fn }
}

// New creates a Guard.
func New(resolver tenant.Resolver, binder Binder, opts ...Option) *Guard {
	g := &Guard{
		resolver:     resolver,
		binder:       binder,
		log:          slog.Default(),
		errorHandler: defaultErrorHandler,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware returns the guard as chi-compatible middleware.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		g.serve(w, r, next)
	})
}

// skipped matches whole path segments, so "/health" never swallows a tenant
// slug such as "/healthcare-inc".
func (g *Guard) skipped(path string) bool {
	for _, prefix := range g.skipPaths {
		prefix = strings.TrimRight(prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (g *Guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	m := Pipeline.New()
	g.fire(ctx, m, eventResolve)

	start := g.now()
	ctx, span := tracer.Start(ctx, "tenant.guard",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("http.route.path", r.URL.Path)),
	)

	res, err := g.resolver.Resolve(ctx, r.Host, r.URL.Path)
	if err != nil {
		g.reject(ctx, w, r, m, span, err)
		g.fire(ctx, m, eventTeardown)
		return
	}
	if res.Landlord {
		span.SetAttributes(attribute.Bool("tenant.landlord", true))
		span.End()
		outcomes.WithLabelValues("landlord").Inc()
		g.fire(ctx, m, eventBypass)
		next.ServeHTTP(w, r)
		return
	}

	t := res.Tenant
	span.SetAttributes(
		attribute.String("tenant.id", t.ID.String()),
		attribute.String("tenant.slug", t.Slug),
		attribute.String("tenant.database", t.Database),
	)

	binding := g.binder.NewBinding()
	ctx, scope := tenant.NewScope(ctx)
	ctx = switchboard.WithBinding(ctx, binding)
	inFlight.Inc()
	defer func() {
		binding.Reset()
		scope.Clear()
		inFlight.Dec()
		g.fire(ctx, m, eventTeardown)
	}()

	if err := binding.Activate(ctx, t.Database); err != nil {
		g.reject(ctx, w, r, m, span, err)
		return
	}
	if err := binding.Probe(ctx); err != nil {
		g.reject(ctx, w, r, m, span, err)
		return
	}
	scope.Set(t)
	g.fire(ctx, m, eventBind)

	bindDuration.Observe(g.now().Sub(start).Seconds())
	outcomes.WithLabelValues("bound").Inc()
	span.End()

	next.ServeHTTP(w, r.WithContext(ctx))
}

func (g *Guard) reject(ctx context.Context, w http.ResponseWriter, r *http.Request, m *statemachine.Machine, span trace.Span, err error) {
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome(err))
	outcomes.WithLabelValues(outcome(err)).Inc()
	g.fire(ctx, m, eventFail)

	switch {
	case ctx.Err() != nil:
		g.log.DebugContext(ctx, "tenant binding abandoned", logger.Error(err))
	case HTTPError(err).Code >= http.StatusInternalServerError:
		g.log.ErrorContext(ctx, "tenant binding failed", logger.Error(err))
	default:
		g.log.DebugContext(ctx, "tenant resolution rejected", logger.Error(err))
	}
	g.errorHandler(w, r, err)
}

func (g *Guard) fire(ctx context.Context, m *statemachine.Machine, event statemachine.Event) {
	if err := m.Fire(ctx, event, nil); err != nil {
		g.log.ErrorContext(ctx, "guard state transition", logger.Error(err))
		return
	}
	if g.onState != nil {
		g.onState(ctx, m.Current().(State))
	}
}

// RequireTenant answers 404 for requests with no bound tenant, for tenant
// routes that share paths with landlord routes under host resolution.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.FromContext(r.Context()); !ok {
			core.WriteError(w, r, ErrTenantRouteRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLandlord answers 404 for requests bound to a tenant, keeping
// landlord routes off tenant hosts under host resolution.
func RequireLandlord(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.FromContext(r.Context()); ok {
			core.WriteError(w, r, core.ErrNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
