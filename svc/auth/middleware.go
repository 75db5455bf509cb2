package auth

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/jwt"
	"github.com/dmitrymomot/crmkit/pkg/rbac"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

// Authenticate verifies the bearer token and publishes the Principal.
// It must run after the guard: the token's tenant must equal the bound tenant.
func (s *Service) Authenticate() func(http.Handler) http.Handler {
	verify := jwt.MiddlewareWithConfig(jwt.MiddlewareConfig{
		Service:   s.tokens,
		NewClaims: func() jwt.Claims { return &Claims{} },
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			s.log.DebugContext(r.Context(), "token rejected", "error", err)
			core.WriteError(w, r, core.ErrUnauthorized)
		},
	})

	return func(next http.Handler) http.Handler {
		publish := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			t, bound := tenant.FromContext(ctx)
			claims, ok := jwt.GetClaims[*Claims](ctx)
			if !bound || !ok || claims.TenantID != t.ID.String() {
				core.WriteError(w, r, core.ErrUnauthorized)
				return
			}
			p, err := principal(claims)
			if err != nil {
				core.WriteError(w, r, core.ErrUnauthorized)
				return
			}
			ctx = WithPrincipal(ctx, p)
			if len(p.Roles) > 0 {
				ctx = rbac.WithRole(ctx, p.Roles[0])
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		chain := verify(publish)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := tenant.FromContext(r.Context()); !ok {
				// Mounted outside the guard: a wiring bug, not a client error.
				core.WriteError(w, r, fmt.Errorf("auth: %w", tenant.ErrNoTenantInContext))
				return
			}
			chain.ServeHTTP(w, r)
		})
	}
}

func principal(c *Claims) (*Principal, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: userID, TenantID: tenantID, Email: c.Email, Roles: c.Roles}, nil
}

// RequirePermission responds 403 unless one of the principal's roles grants
// permission, and 401 when there is no principal.
func RequirePermission(policy *rbac.Policy, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				core.WriteError(w, r, core.ErrUnauthorized)
				return
			}
			for _, role := range p.Roles {
				if policy.HasPermission(role, permission) {
					next.ServeHTTP(w, r)
					return
				}
			}
			core.WriteError(w, r, core.ErrForbidden)
		})
	}
}
