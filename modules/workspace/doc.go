// Package workspace exposes the HTTP API of the CRM core.
//
// Landlord routes (registration and tenant administration) never carry a
// tenant. Tenant routes run behind the guard, so every handler here finds
// the tenant and its database binding in the request context.
//
//	r := chi.NewRouter()
//	r.Use(g.Middleware)
//	workspace.Router(r, workspace.RouterOptions{
//		Strategy: tenant.StrategyPath,
//		Landlord: workspace.NewLandlord(provisioner, registry, adminToken),
//		Tenant:   workspace.NewTenant(authSvc, registry, members.NewStore(), policy),
//	})
package workspace
