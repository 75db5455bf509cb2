// Package switchboard binds requests to tenant databases.
//
// The Switchboard keeps one pgx pool per tenant database, created lazily on
// first activation (concurrent first activations share one connect via
// singleflight), capped by Config.MaxPools with least-recently-used idle
// eviction, and reaped after Config.IdleTimeout without use.
//
// A Binding is the per-request "tenant connection". Activate points it at a
// database, DB returns the handle for queries, Reset releases it. Bindings
// are never shared between requests, so one request switching tenants cannot
// redirect another request's queries.
//
//	b := sb.NewBinding()
//	defer b.Reset()
//	if err := b.Activate(ctx, "tenant_ahmed_tech"); err != nil {
//		return err
//	}
//	db, err := b.DB()
//
// Purge retires a pool; bindings still holding it get ErrStaleBinding on next
// use rather than silently talking to a pool that is about to close.
package switchboard
