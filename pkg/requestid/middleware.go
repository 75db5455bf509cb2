package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	Header      = "X-Request-ID"
	maxIDLength = 128
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type options struct {
	header   string
	trust    bool
	generate func() string
}

type Option func(*options)

// WithHeader changes the header the ID is read from and written to.
func WithHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.header = name
		}
	}
}

// WithTrustIncoming controls whether client supplied IDs are reused.
// Enabled by default; disable it when the service is not behind a proxy that
// sets the header itself.
func WithTrustIncoming(trust bool) Option {
	return func(o *options) { o.trust = trust }
}

// WithGenerator overrides ID generation.
func WithGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.generate = fn
		}
	}
}

// New returns the request ID middleware.
func New(opts ...Option) func(http.Handler) http.Handler {
	o := &options{header: Header, trust: true, generate: uuid.NewString}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(o.header)
			if !o.trust || !valid(id) {
				id = o.generate()
			}
			w.Header().Set(o.header, id)

			ctx := r.Context()
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("request.id", id))
			next.ServeHTTP(w, r.WithContext(WithContext(ctx, id)))
		})
	}
}

// Middleware is New with default options.
func Middleware(next http.Handler) http.Handler {
	return New()(next)
}

func valid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
