package extender

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error patterns.
var (
	// ErrDependencyUnavailable is returned by a tracker that was closed
	// because the JSON parser service went away.
	ErrDependencyUnavailable = errors.New("json parser service unavailable")

	// ErrDescriptorNotFound is returned when a module has no descriptor at
	// the configured path. It is also classed as a malformed descriptor.
	ErrDescriptorNotFound = errors.New("descriptor not found")
)

// ModuleError attaches a module's identity to an activation failure.
type ModuleError struct {
	Err      error
	Module   string
	ModuleID int64
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s [%d]: %v", e.Module, e.ModuleID, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}
