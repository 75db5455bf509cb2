// Package guard binds each HTTP request to its tenant before any handler,
// credential lookup included, runs.
//
// For every request the guard resolves the tenant, points a fresh
// switchboard binding at the tenant database, probes it and publishes the
// tenant into the request scope. Whatever happens next (the handler returns,
// panics, or the client goes away) the binding is reset and the scope
// cleared before the guard returns.
//
// Resolution failures short-circuit the request without touching any tenant
// database: unknown tenants answer 404, inactive ones 403 and malformed
// identifiers 400. Activation or probe failures answer 500.
//
// Requests the resolver classifies as landlord routes pass through with no
// tenant bound.
package guard
