package ratelimiter

import (
	"hash/fnv"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxKeyLength = 64

// KeyFunc derives the bucket key of a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByIP keys on the client address. Put chi's RealIP in front when running
// behind a proxy.
func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Composite joins the non-empty keys of fns; keys longer than 64 bytes are
// hashed with FNV-1a.
func Composite(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if k := fn(r); k != "" {
				parts = append(parts, k)
			}
		}
		key := strings.Join(parts, ":")
		if len(key) > maxKeyLength {
			h := fnv.New64a()
			_, _ = h.Write([]byte(key))
			return strconv.FormatUint(h.Sum64(), 36)
		}
		return key
	}
}

type middlewareConfig struct {
	onLimited func(w http.ResponseWriter, r *http.Request, res Result)
	onError   func(w http.ResponseWriter, r *http.Request, err error) bool
	now       func() time.Time
}

type MiddlewareOption func(*middlewareConfig)

// WithLimitedHandler renders denied requests. Rate limit headers are
// already set when it runs.
func WithLimitedHandler(fn func(w http.ResponseWriter, r *http.Request, res Result)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onLimited = fn
		}
	}
}

// WithErrorHandler decides what happens when the store fails. Returning
// true lets the request through.
func WithErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error) bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onError = fn
		}
	}
}

// Middleware limits requests per key. Store failures let requests through
// unless WithErrorHandler says otherwise.
func Middleware(b *Bucket, key KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		onLimited: func(w http.ResponseWriter, _ *http.Request, _ Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		onError: func(http.ResponseWriter, *http.Request, error) bool { return true },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			res, err := b.Allow(r.Context(), k)
			if err != nil {
				if cfg.onError(w, r, err) {
					next.ServeHTTP(w, r)
				}
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			if !res.Allowed() {
				retry := int(res.RetryAfter(cfg.now()).Round(time.Second).Seconds())
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				cfg.onLimited(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
