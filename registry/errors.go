package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry failures.
var (
	// ErrRejected is returned when the registry refuses a registration.
	ErrRejected = errors.New("registration rejected")

	// ErrNotRegistered is returned when revoking a registration twice.
	ErrNotRegistered = errors.New("not registered")
)

// RejectionError explains why a registration was refused.
type RejectionError struct {
	Reason       string
	ServiceTypes []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("registration of %v rejected: %s", e.ServiceTypes, e.Reason)
}

// Is implements error matching for errors.Is() checks.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}
