package provision

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies a provisioning failure.
type Kind string

const (
	InvalidRequest       Kind = "invalid_request"
	SlugConflict         Kind = "slug_conflict"
	DatabaseCreateFailed Kind = "database_create_failed"
	RegistryWriteFailed  Kind = "registry_write_failed"
	PostSetupFailed      Kind = "post_setup_failed"
	// RegistryUnavailable is a failed registry read during slug allocation.
	RegistryUnavailable Kind = "registry_unavailable"
)

var (
	ErrMissingDependency = errors.New("provision: missing dependency")
	ErrSlugTaken         = errors.New("provision: slug is already taken")
	ErrSlugExhausted     = errors.New("provision: no free slug found")
)

// Error is the typed failure of Provision. TenantID is set once the registry
// row exists, i.e. only for PostSetupFailed.
type Error struct {
	Kind     Kind
	Step     string
	TenantID uuid.UUID
	Err      error
}

func (e *Error) Error() string {
	if e.TenantID != uuid.Nil {
		return fmt.Sprintf("provision: %s at %s (tenant %s): %v", e.Kind, e.Step, e.TenantID, e.Err)
	}
	return fmt.Sprintf("provision: %s at %s: %v", e.Kind, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a provisioning Error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a provisioning Error of kind k.
func IsKind(err error, k Kind) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == k
}
