// Package registry is the landlord-database implementation of
// tenant.Registry, plus a Redis-backed tenant.Cache for multi-process
// deployments.
//
// Store always queries the landlord pool it was built with. It never looks
// at the request binding, so a tenant request can read the registry without
// touching its own database.
package registry
