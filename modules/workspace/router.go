package workspace

import (
	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/guard"
)

// Registrar adds its routes to a router.
type Registrar interface {
	Register(r chi.Router)
}

// RouterOptions configures which route sets Router mounts. Each is optional.
type RouterOptions struct {
	// Strategy is the tenant resolution strategy; it decides where tenant
	// routes live.
	Strategy string
	Landlord Registrar
	Tenant   Registrar
}

// Router registers landlord and tenant routes on r.
//
// With path resolution tenant routes live under "/{tenant}". With host
// resolution they share the root with landlord routes, and each set refuses
// requests meant for the other.
func Router(r chi.Router, opts RouterOptions) {
	if opts.Landlord != nil {
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireLandlord)
			opts.Landlord.Register(r)
		})
	}
	if opts.Tenant == nil {
		return
	}
	if opts.Strategy == tenant.StrategyHost {
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireTenant)
			opts.Tenant.Register(r)
		})
		return
	}
	r.Route("/{tenant}", func(r chi.Router) {
		r.Use(guard.RequireTenant)
		opts.Tenant.Register(r)
	})
}
