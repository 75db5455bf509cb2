package auth

import "errors"

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNoPrincipal        = errors.New("auth: no principal in context")
	ErrTenantMismatch     = errors.New("auth: token belongs to another tenant")
	ErrPasswordTooShort   = errors.New("auth: password too short")
)
