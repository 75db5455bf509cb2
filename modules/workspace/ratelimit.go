package workspace

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/logger"
	"github.com/dmitrymomot/crmkit/pkg/ratelimiter"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

var ErrTooManyRequests = core.NewHTTPError(http.StatusTooManyRequests, "too_many_requests")

// Option configures Landlord and Tenant handlers.
type Option func(*handlerOptions)

type handlerOptions struct {
	limit func(http.Handler) http.Handler
}

func newHandlerOptions(opts []Option) handlerOptions {
	o := handlerOptions{limit: func(next http.Handler) http.Handler { return next }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRateLimit throttles the unauthenticated entry points: registration on
// the landlord, login on tenants.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(o *handlerOptions) {
		if mw != nil {
			o.limit = mw
		}
	}
}

// RateLimit limits requests per client address and, when one is bound, per
// tenant. A failing store lets requests through.
func RateLimit(b *ratelimiter.Bucket, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return ratelimiter.Middleware(b,
		ratelimiter.Composite(byTenant, ratelimiter.ByIP),
		ratelimiter.WithLimitedHandler(func(w http.ResponseWriter, r *http.Request, _ ratelimiter.Result) {
			core.WriteError(w, r, ErrTooManyRequests)
		}),
		ratelimiter.WithErrorHandler(func(_ http.ResponseWriter, r *http.Request, err error) bool {
			log.WarnContext(r.Context(), "rate limit store failed", logger.Error(err))
			return true
		}),
	)
}

func byTenant(r *http.Request) string {
	if id, ok := tenant.IDFromContext(r.Context()); ok {
		return id.String()
	}
	return ""
}
