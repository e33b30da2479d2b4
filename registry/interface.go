// Package registry defines the component registry boundary and an
// in-memory implementation of it.
package registry

import "github.com/reglet-dev/npm-portlet-extender/properties"

// ComponentRegistry registers instances under service types and properties.
type ComponentRegistry interface {
	// Register publishes instance under serviceTypes tagged with props.
	// Rejections match ErrRejected.
	Register(serviceTypes []string, instance any, props properties.Properties) (Registration, error)
}

// Registration is the revocable handle of a registered instance.
type Registration interface {
	// ID identifies the registration within its registry.
	ID() string

	// Properties returns a copy of the registration's properties.
	Properties() properties.Properties

	// Unregister revokes the registration. A second call fails with
	// ErrNotRegistered.
	Unregister() error
}
