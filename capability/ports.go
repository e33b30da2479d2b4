// Package capability models the requirement/capability negotiation between
// modules and decides which modules opt into the npm portlet extender.
package capability

import "fmt"

const (
	// ExtenderNamespace is the negotiation namespace extenders are wired in.
	ExtenderNamespace = "osgi.extender"

	// ExtensionName identifies the npm portlet extender within the namespace.
	ExtensionName = "liferay.npm.portlet"

	// VersionAttribute is the capability attribute holding a semantic version.
	VersionAttribute = "version"
)

// Capability is something a provider offers in a namespace, described by
// attributes. The attribute named after the namespace carries its identity.
type Capability struct {
	Attributes map[string]any
	Namespace  string
	Provider   string
}

// Attribute returns a capability attribute.
func (c Capability) Attribute(name string) (any, bool) {
	v, ok := c.Attributes[name]
	return v, ok
}

// String renders the capability the way manifests declare it.
func (c Capability) String() string {
	return fmt.Sprintf("%s=%v", c.Namespace, c.Attributes[c.Namespace])
}

// Requirement is a module's request for a capability. Every attribute must
// equal the capability's, and Version, when set, is a semver range the
// capability's version attribute must satisfy.
type Requirement struct {
	Attributes map[string]string
	Namespace  string
	Version    string
	Optional   bool
}

// Wire connects a requirement to the capability that satisfied it.
type Wire struct {
	Capability  Capability
	Requirement Requirement
}

// Wiring exposes the resolved requirement wires of a module.
type Wiring interface {
	// RequiredWires returns the wires of requirements in namespace.
	RequiredWires(namespace string) []Wire
}
