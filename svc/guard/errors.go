package guard

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/switchboard"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
)

var (
	// ErrTenantNotFound is returned when no tenant matches the request.
	ErrTenantNotFound = core.NewHTTPError(http.StatusNotFound, "tenant_not_found")

	// ErrTenantInactive is returned when the tenant exists but is not active.
	ErrTenantInactive = core.NewHTTPError(http.StatusForbidden, "tenant_inactive")

	// ErrTenantIdentifier is returned when the slug or host is malformed.
	ErrTenantIdentifier = core.NewHTTPError(http.StatusBadRequest, "tenant_identifier_invalid")

	// ErrTenantUnavailable is returned when the tenant database cannot be reached.
	ErrTenantUnavailable = core.NewHTTPError(http.StatusInternalServerError, "tenant_database_unavailable")

	// ErrResolutionFailed is returned for any other resolution failure, e.g. a registry outage.
	ErrResolutionFailed = core.NewHTTPError(http.StatusInternalServerError, "tenant_resolution_failed")

	// ErrTenantRouteRequired is returned when a tenant route is reached without a tenant.
	ErrTenantRouteRequired = core.NewHTTPError(http.StatusNotFound, "tenant_required")
)

// ErrorHandler writes the response for a request the guard rejected.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// HTTPError maps a guard failure to its client-facing error.
func HTTPError(err error) core.HTTPError {
	if re, ok := tenant.AsResolutionError(err); ok {
		switch re.Kind {
		case tenant.NotFound:
			return ErrTenantNotFound
		case tenant.Inactive:
			return ErrTenantInactive
		case tenant.Malformed:
			return ErrTenantIdentifier
		}
	}
	if switchboard.IsConnectionError(err) || errors.Is(err, switchboard.ErrClosed) {
		return ErrTenantUnavailable
	}
	return ErrResolutionFailed
}

func outcome(err error) string {
	if re, ok := tenant.AsResolutionError(err); ok {
		return string(re.Kind)
	}
	if switchboard.IsConnectionError(err) {
		return "connection_error"
	}
	return "error"
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	core.WriteError(w, r, HTTPError(err))
}
