// Package tenant holds the tenant model and everything needed to bind a
// request to one: the landlord Registry contract, the status Lifecycle,
// path and host Resolvers with typed ResolutionError, lookup caching and the
// ambient per-request Scope.
//
// The registry always runs on the landlord connection. Resolvers are pure
// lookups; activation of the tenant database is the job of the switchboard
// and the guard middleware.
//
// A request context carries at most one Scope. The guard sets it after the
// tenant database has been activated and clears it at teardown:
//
//	ctx, scope := tenant.NewScope(r.Context())
//	defer scope.Clear()
//	scope.Set(t)
//
//	t, ok := tenant.FromContext(ctx)
package tenant
