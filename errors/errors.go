package errors

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
	ErrValidationFailed     = fmt.Errorf("validation failed")
	ErrNotFound             = fmt.Errorf("comment not found")
	ErrUnauthorized         = fmt.Errorf("not the author of this comment")
	ErrPersistenceFailed    = fmt.Errorf("store did not confirm the change")
	ErrDuplicateConnection  = fmt.Errorf("connection id already registered")
	ErrConnectionNotFound   = fmt.Errorf("connection not registered")
)

const (
	ReasonAuthenticationFailed = "AUTHENTICATION_FAILED"
	ReasonValidationFailed     = "VALIDATION_FAILED"
	ReasonNotFound             = "NOT_FOUND"
	ReasonUnauthorized         = "UNAUTHORIZED"
	ReasonPersistenceFailed    = "PERSISTENCE_FAILED"
	ReasonInternal             = "INTERNAL"
)

// Reason maps a (possibly wrapped) error to the wire-level reason string
// reported back to the requesting connection.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return ReasonAuthenticationFailed
	case errors.Is(err, ErrValidationFailed):
		return ReasonValidationFailed
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrPersistenceFailed):
		return ReasonPersistenceFailed
	default:
		return ReasonInternal
	}
}
