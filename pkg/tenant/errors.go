package tenant

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is returned when a tenant cannot be found.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidIdentifier is returned when the identifier format is invalid.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrInactiveTenant is returned when trying to use an inactive tenant.
	ErrInactiveTenant = errors.New("tenant is inactive")

	// ErrConflict is returned when a unique tenant attribute is already taken.
	ErrConflict = errors.New("tenant already exists")

	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("invalid tenant status")

	// ErrStatusTransition is returned when the lifecycle forbids a status change.
	ErrStatusTransition = errors.New("tenant status transition not allowed")
)

// ResolutionKind classifies why a request could not be bound to a tenant.
type ResolutionKind string

const (
	NotFound  ResolutionKind = "not_found"
	Inactive  ResolutionKind = "inactive"
	Malformed ResolutionKind = "malformed"
)

func (k ResolutionKind) sentinel() error {
	switch k {
	case NotFound:
		return ErrTenantNotFound
	case Inactive:
		return ErrInactiveTenant
	default:
		return ErrInvalidIdentifier
	}
}

// ResolutionError is the typed failure of a Resolver.
// errors.Is matches it against ErrTenantNotFound, ErrInactiveTenant or
// ErrInvalidIdentifier depending on Kind, and against the wrapped cause.
type ResolutionError struct {
	Kind       ResolutionKind
	Identifier string
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve tenant %q: %s", e.Identifier, e.Kind.sentinel())
	if e.Err != nil && !errors.Is(e.Err, e.Kind.sentinel()) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func resolutionError(kind ResolutionKind, identifier string, err error) *ResolutionError {
	return &ResolutionError{Kind: kind, Identifier: identifier, Err: err}
}

// AsResolutionError extracts a ResolutionError from err.
func AsResolutionError(err error) (*ResolutionError, bool) {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
