package tenant

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

type scopeKey struct{}

// Scope is the ambient "current tenant" of one unit of work. It is installed
// into a request context once and cleared at teardown, after which every
// context derived from it reports no tenant, even in goroutines that
// captured the context earlier.
type Scope struct {
	current atomic.Pointer[Tenant]
}

// NewScope installs an empty scope into ctx.
func NewScope(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// Set publishes t as the current tenant.
func (s *Scope) Set(t *Tenant) {
	s.current.Store(t)
}

// Clear removes the current tenant.
func (s *Scope) Clear() {
	s.current.Store(nil)
}

// Tenant returns the current tenant, or nil.
func (s *Scope) Tenant() *Tenant {
	return s.current.Load()
}

// WithTenant returns a context whose scope already holds t.
// Used by background jobs and tests that do not go through the guard.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	ctx, s := NewScope(ctx)
	s.Set(t)
	return ctx
}

// ScopeFromContext returns the scope installed in ctx.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// FromContext retrieves the current tenant.
// Returns nil, false if no tenant is published or the scope was cleared.
func FromContext(ctx context.Context) (*Tenant, bool) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, false
	}
	t := s.Tenant()
	return t, t != nil
}

// IDFromContext retrieves just the tenant ID from the context.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	t, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return t.ID, true
}

// MustFromContext retrieves the tenant from the context.
// Panics if no tenant is found. Use this only in handlers
// mounted behind the guard.
func MustFromContext(ctx context.Context) *Tenant {
	t, ok := FromContext(ctx)
	if !ok {
		panic("tenant: no tenant in context")
	}
	return t
}

// LoggerExtractor returns a logger context extractor adding tenant_id and
// tenant_slug to every record logged with a tenant-scoped context.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		t, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Group("tenant",
			slog.String("id", t.ID.String()),
			slog.String("slug", t.Slug),
		), true
	}
}
