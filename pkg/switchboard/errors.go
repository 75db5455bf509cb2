package switchboard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned when tenant data is accessed before activation or after reset.
	ErrNotActive = errors.New("switchboard: no tenant database active")
	// ErrStaleBinding is returned when the pool a binding holds was purged.
	ErrStaleBinding = errors.New("switchboard: binding is stale")
	// ErrActivateInTransaction is returned when Activate is called inside InTx.
	ErrActivateInTransaction = errors.New("switchboard: activate called inside an open transaction")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("switchboard: closed")
	// ErrNoBinding is returned when the context carries no binding.
	ErrNoBinding = errors.New("switchboard: no binding in context")
)

// ConnectionError reports that a tenant database is unreachable or misconfigured.
type ConnectionError struct {
	Database string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("switchboard: %s %q: %v", e.Op, e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
