package parser

import (
	"errors"
	"fmt"
)

// ErrMalformedDescriptor is matched by every descriptor parse failure. A
// descriptor whose name or version is the empty string counts as malformed.
var ErrMalformedDescriptor = errors.New("malformed descriptor")

// MalformedDescriptorError describes why a descriptor was rejected: too
// large, not JSON, a missing or empty name or version, or a portlet member
// that is not an object.
type MalformedDescriptorError struct {
	Err    error
	Reason string
}

func (e *MalformedDescriptorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed descriptor: %s: %v", e.Reason, e.Err)
	}
	return "malformed descriptor: " + e.Reason
}

// Is implements error matching for errors.Is() checks.
func (e *MalformedDescriptorError) Is(target error) bool {
	return target == ErrMalformedDescriptor
}

func (e *MalformedDescriptorError) Unwrap() error {
	return e.Err
}

func malformed(reason string, err error) error {
	return &MalformedDescriptorError{Reason: reason, Err: err}
}
