package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSigningSecret means no entitlement signing secret is configured.
	ErrMissingSigningSecret = errors.New("entitlement signing secret is not configured")

	// ErrInvalidBillingEvent wraps every webhook payload validation failure.
	ErrInvalidBillingEvent = errors.New("invalid billing event")

	// ErrInvalidEntitlement wraps every entitlement field validation failure.
	ErrInvalidEntitlement = errors.New("invalid entitlement")

	// ErrInvalidToken means a stored or presented entitlement token failed verification.
	ErrInvalidToken = errors.New("invalid entitlement token")

	// ErrNoEntitlement means nothing is cached yet, or the cached entitlement was revoked.
	ErrNoEntitlement = errors.New("no entitlement cached")

	// ErrMissingSignature is returned by revoke without a signature.
	ErrMissingSignature = errors.New("signature is required")
)

// ValidationError carries a client-safe description of a bad field.
type ValidationError struct {
	Field   string
	Message string
	event   bool
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is lets errors.Is match the matching sentinel.
func (e *ValidationError) Is(target error) bool {
	if e.event {
		return target == ErrInvalidBillingEvent
	}
	return target == ErrInvalidEntitlement
}

func eventError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), event: true}
}

// NewEventError reports a billing event that cannot be applied.
func NewEventError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, event: true}
}
