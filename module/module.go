// Package module models host modules, their lifecycle events and an
// in-memory module framework that delivers those events.
package module

import (
	"errors"
	"fmt"
	"io"

	"github.com/reglet-dev/npm-portlet-extender/capability"
)

// State is a module lifecycle state.
type State int

const (
	// StateInstalled is the inactive state of a freshly installed module.
	StateInstalled State = iota
	// StateActive means the module is started.
	StateActive
	// StateResolved is the inactive state of a stopped module.
	StateResolved
	// StateRemoved is terminal.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	case StateResolved:
		return "resolved"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Module is a host module as seen by the extender. Implementations must be
// safe for concurrent use.
type Module interface {
	capability.Wiring

	// ID is unique for the lifetime of the framework.
	ID() int64
	SymbolicName() string
	Version() string
	State() State

	// Open returns a resource by slash-separated relative path. A missing
	// resource yields an error matching fs.ErrNotExist.
	Open(path string) (io.ReadCloser, error)
}

// EventKind classifies module lifecycle notifications.
type EventKind int

const (
	// EventActivated is delivered when a module becomes active.
	EventActivated EventKind = iota + 1
	// EventModified is delivered when an active module is updated in place.
	EventModified
	// EventRemoved is delivered when a module stops being active.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventActivated:
		return "activated"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a lifecycle notification for one module.
type Event struct {
	Module Module
	Kind   EventKind
}

// Listener receives module events. It may be called concurrently for
// different modules; events for the same module are never concurrent.
type Listener func(Event)

// Source is the module framework boundary consumed by the extender.
type Source interface {
	// Subscribe registers l and returns a function that removes it.
	Subscribe(l Listener) (unsubscribe func())

	// Active returns the modules currently in StateActive.
	Active() []Module
}

// Sentinel errors returned by the framework.
var (
	// ErrModuleNotFound is returned for unknown module IDs.
	ErrModuleNotFound = errors.New("module not found")

	// ErrInvalidState is returned for transitions not allowed from the
	// current state.
	ErrInvalidState = errors.New("invalid module state transition")
)

// StateError describes a rejected lifecycle transition.
type StateError struct {
	Op    string
	State State
	ID    int64
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s module %d in state %s", e.Op, e.ID, e.State)
}

// Is implements error matching for errors.Is() checks.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
