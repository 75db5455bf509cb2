// Package auth authenticates tenant members after the guard has bound a
// tenant to the request.
//
// Members log in with email and password against the current tenant's
// database and receive an HS256 access token whose "tid" claim pins it to
// that tenant. Authenticate verifies the token, rejects tokens minted for a
// different tenant and publishes the Principal. RequirePermission checks the
// principal's roles against an rbac.Policy.
//
//	r.With(authSvc.Authenticate(), auth.RequirePermission(policy, rbac.SettingsUpdate)).
//		Patch("/api/tenant", h)
package auth
