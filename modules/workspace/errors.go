package workspace

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/crmkit/core"
	"github.com/dmitrymomot/crmkit/pkg/slug"
	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/auth"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

var (
	ErrInvalidCredentials  = core.NewHTTPError(http.StatusUnauthorized, "invalid_credentials")
	ErrStatusTransition    = core.NewHTTPError(http.StatusUnprocessableEntity, "invalid_status_transition")
	ErrSlugTaken           = core.NewHTTPError(http.StatusConflict, "slug_taken")
	ErrProvisioningFailed  = core.NewHTTPError(http.StatusInternalServerError, "provisioning_failed")
	ErrTenantSetupFailed   = core.NewHTTPError(http.StatusInternalServerError, "tenant_setup_incomplete")
	ErrAdminAPIDisabled    = core.NewHTTPError(http.StatusForbidden, "admin_api_disabled")
	ErrRegistryUnavailable = core.NewHTTPError(http.StatusServiceUnavailable, "registry_unavailable")
)

// httpError maps domain errors to client-facing ones. Anything unknown is
// returned as-is and renders as a 500 without its message.
func httpError(err error) error {
	if pe, ok := provision.AsError(err); ok {
		return provisionError(pe)
	}
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return core.ErrNotFound
	case errors.Is(err, tenant.ErrConflict):
		return core.ErrConflict
	case errors.Is(err, tenant.ErrStatusTransition), errors.Is(err, tenant.ErrInvalidStatus):
		return ErrStatusTransition
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ErrInvalidCredentials
	}
	return err
}

func provisionError(pe *provision.Error) error {
	var verr core.ValidationError
	switch pe.Kind {
	case provision.InvalidRequest:
		if errors.As(pe, &verr) {
			return verr
		}
		if errors.Is(pe, slug.ErrReserved) || errors.Is(pe, slug.ErrFormat) ||
			errors.Is(pe, slug.ErrTooShort) || errors.Is(pe, slug.ErrTooLong) || errors.Is(pe, slug.ErrEmpty) {
			verr = core.ValidationError{}
			verr.Add("slug", pe.Err.Error())
			return verr
		}
		return core.ErrBadRequest
	case provision.SlugConflict:
		return ErrSlugTaken
	case provision.RegistryWriteFailed:
		if errors.Is(pe, tenant.ErrConflict) {
			return ErrSlugTaken
		}
	case provision.RegistryUnavailable:
		return ErrRegistryUnavailable
	case provision.PostSetupFailed:
		return ErrTenantSetupFailed
	}
	return ErrProvisioningFailed
}
